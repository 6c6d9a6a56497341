package model

import "errors"

var (
	// ErrNotFound covers both a missing resource and a resource owned by a
	// different user; callers must not be able to tell the two apart.
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrAuthenticationFailed is returned on bad login credentials. The
	// message never reveals whether the email exists.
	ErrAuthenticationFailed = errors.New("invalid email or password")

	// ErrAuthenticationRequired is returned when a protected action is
	// attempted without a valid session.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrCSRFRejected maps to the same external status as
	// ErrAuthenticationRequired but is logged distinctly.
	ErrCSRFRejected = errors.New("csrf token missing or invalid")

	// ErrPermissionDenied covers the key-record-absent case among others.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrThrottled is returned when the signup rate limit is exceeded.
	ErrThrottled = errors.New("request was throttled")
)
