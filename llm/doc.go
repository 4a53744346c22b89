// Package llm provides a provider-neutral layer over language model APIs.
//
// Provider packages (anthropic, openai, ollama) implement Client and Pinger.
// Collaborator wraps one client for conversational use: it caches
// availability for a short TTL, sends a bounded tail of the conversation as
// context, and turns timeouts and unreachable providers into typed *Error
// values so callers can fall back without inspecting provider errors.
//
// Usage Example
//
//	client, _ := anthropic.NewAnthropicClient(apiKey, "claude-haiku-4-5", logger)
//	wrapped := llm.WrapWithMiddleware(client, llm.NewLoggingMiddleware(logger))
//	collab := llm.NewCollaborator(wrapped, client, llm.CollaboratorConfig{}, logger)
//
//	if collab.IsAvailable(ctx) {
//	    reply, err := collab.Query(ctx, "hello", history, 300)
//	}
package llm
