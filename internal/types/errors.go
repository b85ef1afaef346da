package types

import "errors"

var (
	// ErrWrite marks a failed append to a message collection.
	ErrWrite = errors.New("message write failed")
	// ErrSubscribe marks a failed or broken live subscription.
	ErrSubscribe = errors.New("subscription failed")
	ErrNotFound  = errors.New("not found")
	// ErrNoWorkspace is returned when an operation needs a workspace id and has none.
	ErrNoWorkspace = errors.New("no workspace selected")
)
