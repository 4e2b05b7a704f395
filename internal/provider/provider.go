// Package provider defines the reply-generation contract the
// conversation store depends on, plus the bundled implementations.
package provider

import "context"

// Provider yields assistant reply text for a prompt. Latency is
// variable, typically one to a few seconds; implementations must honor
// context cancellation.
type Provider interface {
	Respond(ctx context.Context, prompt string) (string, error)
}
