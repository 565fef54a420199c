// Package errs contains sentinel and structured errors shared by the engine,
// transport and storage layers so callers can map failures with errors.Is/As.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the conversation or message does not exist or is not visible to the user.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing, expired or rejected access token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmptyMessage indicates the outgoing text is blank after trimming.
	ErrEmptyMessage = errors.New("empty message")

	// ErrNotOpen indicates an operation that requires the conversation to be open.
	ErrNotOpen = errors.New("conversation not open")

	// ErrNotNewestInbound indicates markSeen targeted a message other than the newest inbound one.
	ErrNotNewestInbound = errors.New("not the newest inbound message")

	// ErrInvalidPayload indicates an inbound event payload failed validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// FetchError reports a transport or HTTP failure while talking to the REST API.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendFailure reports that an optimistic message could not be dispatched.
// Text carries the original content so the caller can offer a retry.
type SendFailure struct {
	ConversationID string
	ProvisionalID  string
	Text           string
	Err            error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send message %q in conversation %q: %v", e.ProvisionalID, e.ConversationID, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }
