// Package llm defines the generation collaborator the chat coordinator streams
// assistant replies from, and its OpenAI-backed implementation.
package llm

import (
	"context"
	"errors"
)

var ErrNoModel = errors.New("llm: model is not configured")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn of conversation context.
type Message struct {
	Role    Role
	Name    string
	Content string
}

// Options configures one generation request. Build it with BuildOptions.
type Options struct {
	Model string
	// User is an opaque end-user / security context string forwarded to the provider.
	User string
}

// RequestContext carries request-level facts used for security metadata.
type RequestContext struct {
	SourceIP        string
	ApplicationName string
}

// Generator opens a lazy, finite, non-restartable stream of text fragments.
type Generator interface {
	Stream(ctx context.Context, messages []Message, opts Options) (Stream, error)
}

// Stream yields fragments until Recv returns io.EOF.
type Stream interface {
	Recv() (string, error)
	Close() error
}
