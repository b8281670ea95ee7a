// Package common defines shared constants and sentinel errors used across
// farmkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// ErrNotFound reports a missing row or queue entry.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized reports rejected credentials or an expired session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotLoggedIn is returned by operations that need an active session.
	ErrNotLoggedIn = errors.New("not logged in")
)
