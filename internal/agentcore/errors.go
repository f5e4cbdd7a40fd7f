// Package agentcore holds the small closed error taxonomy shared by
// AgentLoop and its collaborators, so failures can be classified with
// errors.Is/errors.As instead of string-matching, the way
// internal/mcp/proxy.go classifies ErrToolRetryExhausted in the teacher.
package agentcore

import (
	"context"
	"errors"
)

// Kind identifies one of the error kinds named in original §7.
type Kind string

const (
	KindToolArgsParse Kind = "ToolArgsParse"
	KindToolExecution Kind = "ToolExecution"
	KindModelCall     Kind = "ModelCall"
	KindCompression   Kind = "Compression"
	KindCancellation  Kind = "Cancellation"
	KindSessionIO     Kind = "SessionIO"
	KindMCP           Kind = "MCP"
	KindUnknown       Kind = "Unknown"
)

// ErrCancelled is the sentinel AgentLoop checks for with errors.Is to
// recognize a user-cancelled turn, consumed silently per original §7.
var ErrCancelled = errors.New("aborted")

// Error wraps an underlying cause with a Kind so callers can decide
// disposition (append an Error block, log and continue, swallow) without
// string-matching messages.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error of the given kind around err. Returns nil if err
// is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// IsCancelled reports whether err represents a cancelled operation: either
// ErrCancelled itself, a Kind-Cancellation Error, or context.Canceled.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindCancellation {
		return true
	}
	return errors.Is(err, context.Canceled)
}
