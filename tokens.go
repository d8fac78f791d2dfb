package main

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingMu    sync.Mutex
	encodingCache = make(map[string]*tiktoken.Tiktoken)
)

// countTokens counts tokens for a piece of text. GPT models get a real
// tokenizer; everything else (the local llama fallback included) uses the
// len/4 heuristic, which is close enough for telemetry.
func countTokens(text, model string) int {
	if text == "" {
		return 0
	}

	if strings.HasPrefix(model, "gpt") {
		if enc := encodingForModel(model); enc != nil {
			return len(enc.Encode(text, nil, nil))
		}
	}

	// Rough heuristic: ~4 characters per token
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func encodingForModel(model string) *tiktoken.Tiktoken {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Cache the miss so we don't retry on every call
		encodingCache[model] = nil
		return nil
	}
	encodingCache[model] = enc
	return enc
}
