package types

import "errors"

// Shared error taxonomy of the real-time layer. The hub maps these onto the
// wire "error" message sent back to the originating client only.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("not authorized")
	ErrSessionEnded = errors.New("session has ended")
	ErrInvalid      = errors.New("invalid request")
)
