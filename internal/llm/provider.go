// Package llm abstracts the optional language-model backends the scenario
// translator can prefer over its deterministic rules. Absence of a provider
// is a normal, fully supported configuration.
package llm

import "context"

// Provider is a minimal completion backend.
type Provider interface {
	// Complete sends a system prompt and a user message and returns the raw
	// model output.
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
	// Available reports whether the backend is reachable and usable right
	// now. Callers treat false as "use the fallback", not as an error.
	Available(ctx context.Context) bool
	// Name identifies the backend kind, e.g. "ollama".
	Name() string
	// Model identifies the configured model.
	Model() string
}
