// Package llm reaches the external text-generation backend and shields the
// rest of the system from its failures.
package llm

import "context"

// Message is one role/content pair in the order sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a raw text-generation backend. Implementations return transport
// and protocol errors as-is; degrading them into conversational text is the
// Gateway's job.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
