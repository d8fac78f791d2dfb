package main

import "testing"

func TestCountTokensHeuristic(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1}, // short text still counts as one token
		{"12345678", 2},
		{"abcdefghijklmnop", 4},
	}
	for _, tc := range cases {
		if got := countTokens(tc.text, "llama3.2"); got != tc.want {
			t.Errorf("countTokens(%q, llama3.2) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestCountTokensUnknownModelFallsBack(t *testing.T) {
	// A model name the tokenizer has never heard of uses the heuristic
	if got := countTokens("abcdefgh", "mystery-model"); got != 2 {
		t.Errorf("countTokens = %d, want 2", got)
	}
}
