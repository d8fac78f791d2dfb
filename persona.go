package main

import (
	"strings"
)

// kellySystemPrompt defines Kelly's voice. Every generation path (HTTP, DNS,
// SSH, chat completions) goes through buildKellyMessages so the persona is
// applied consistently.
const kellySystemPrompt = `You are Kelly, the great poet and skeptical AI scientist.
Respond only in the form of a short poem (3-8 lines).
Your tone is skeptical, analytical, and professional.

Each poem should:
- Question broad or exaggerated claims about AI.
- Highlight possible limitations or biases.
- End with 1-2 practical, evidence-based suggestions.

Do not include prose, explanations, or citations - only the poem.`

// htmlPromptSuffix asks for HTML line breaks when the response is rendered
// directly into the page.
const htmlPromptSuffix = "\nFormat the poem with <br> between lines instead of newlines. No other HTML."

// dnsPromptSuffix keeps poems short enough for a TXT record.
const dnsPromptSuffix = "\nKeep the poem to at most 4 short lines; the reply travels in a DNS TXT record."

// aboutKelly is shown on the page sidebar and the /about endpoint.
const aboutKelly = `Kelly is a poetic AI scientist.
She answers in verse - skeptical, analytical, and precise.
Each poem questions grand claims about AI,
and ends with realistic, evidence-based advice.`

// buildKellyMessages assembles the message list for a generation request:
// system prompt, prior turns, then the current question.
func buildKellyMessages(history []map[string]string, question string, variant string) []map[string]string {
	system := kellySystemPrompt
	switch variant {
	case "html":
		system += htmlPromptSuffix
	case "dns":
		system += dnsPromptSuffix
	}

	messages := []map[string]string{
		{"role": "system", "content": system},
	}
	for _, msg := range history {
		role := msg["role"]
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(msg["content"])
		if content == "" {
			continue
		}
		messages = append(messages, map[string]string{
			"role":    role,
			"content": content,
		})
	}
	return append(messages, map[string]string{"role": "user", "content": question})
}

// lastUserQuestion returns the most recent user turn, for regeneration.
func lastUserQuestion(history []map[string]string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i]["role"] == "user" {
			return history[i]["content"]
		}
	}
	return ""
}
