package repository

import "errors"

var (
	// ErrNotFound means the conversation exists in neither cache nor the
	// remote store.
	ErrNotFound = errors.New("conversation not found")

	// ErrAccessDenied means the conversation exists but belongs to a
	// different user. Ownership is enforced here, not upstream.
	ErrAccessDenied = errors.New("access denied")
)
