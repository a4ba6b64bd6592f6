package engine

import (
	"errors"
	"fmt"
)

// ErrUnavailable wraps failures to reach the underlying store. Callers may
// retry with backoff; the engine itself never retries.
var ErrUnavailable = errors.New("store unavailable")

// AlreadyBoundError means the request was accepted or closed concurrently.
// The caller may re-query open requests but must not retry the same accept.
type AlreadyBoundError struct {
	RequestID    string
	BoundActorID string
}

func (e AlreadyBoundError) Error() string {
	if e.BoundActorID != "" {
		return fmt.Sprintf("request %s already bound to actor %s", e.RequestID, e.BoundActorID)
	}
	return fmt.Sprintf("request %s already bound", e.RequestID)
}

// NotEligibleError means the actor's capabilities do not satisfy the request.
type NotEligibleError struct {
	RequestID string
	ActorID   string
	Reason    string
}

func (e NotEligibleError) Error() string {
	return fmt.Sprintf("actor %s not eligible for request %s: %s", e.ActorID, e.RequestID, e.Reason)
}

// InvalidTransitionError means the operation is not legal from the request's
// current status (declined is terminal, drafts are invisible, and only the
// bound actor may decline).
type InvalidTransitionError struct {
	RequestID string
	From      string
	Op        string
	Reason    string
}

func (e InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s on request %s in status %s", e.Op, e.RequestID, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
