// Package llm contains driven.Generator implementations that write answers
// from assembled prompts.
//
//   - ollama: local models over the Ollama HTTP API
//   - openai: OpenAI and compatible chat completion endpoints
//
// Every failure is wrapped with domain.ErrGenerationUnavailable so callers
// can report the outage instead of inventing an answer.
package llm
