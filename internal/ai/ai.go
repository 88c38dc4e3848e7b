// Package ai models the AI model call as a single opaque capability (spec
// §6 "AI capability (optional collaborator)"): `ai.complete(prompt,
// max_tokens) -> text`. Handlers depend only on the Capability interface,
// never on a concrete provider, so the server stays uniform whether or not
// an AI backend is configured.
package ai

import (
	"context"

	"github.com/jordigilh/devctx-mcp/internal/errors"
)

// Capability is the single method every AI-backed tool handler consumes.
type Capability interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Null is the capability used when no AI provider is configured. Every
// call returns ErrorTypeUnavailable; the rest of the server is otherwise
// unaffected (spec §6: "Absent AI means AI-tool handlers return
// ErrorKind.Unavailable but the server continues").
type Null struct{}

func (Null) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", errors.NewUnavailableError("AI capability")
}
