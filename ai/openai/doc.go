// Package openai talks to OpenAI-compatible servers (OpenAI, Ollama, vLLM,
// LocalAI) through langchaingo.
//
// The extractor sends one chat completion per chunk with a system prompt
// that lists the allowed entity types and relation labels, then parses the
// JSON reply. Replies that do not parse are patched by a small repair pass
// and retried up to ai.Config.MaxAttempts times before the call fails with
// core.ErrMalformedExtraction.
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithExtractorModel("qwen2.5:7b"),
//	))
package openai
