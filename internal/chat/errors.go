package chat

import "errors"

var (
	// ErrNegativeLimit means the caller asked for a negative history window.
	// Reported before any storage access.
	ErrNegativeLimit = errors.New("chat: history limit must be non-negative")

	// ErrSessionNotFound means an operation targeted a session id that does
	// not exist. AppendMessage never creates sessions implicitly.
	ErrSessionNotFound = errors.New("chat: session not found")

	// ErrInvalidRole means a role other than "user" or "model" was supplied.
	ErrInvalidRole = errors.New("chat: role must be user or model")
)
