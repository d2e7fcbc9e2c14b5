package service

import "errors"

// Failure taxonomy of the session manager. Handlers map these to
// fixed user-facing responses; nothing here is retried.
var (
	// ErrValidation rejects malformed input before any store access.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCredentials never distinguishes unknown username from
	// wrong password, to avoid username enumeration.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrNotVerified is currently unreachable (verification is
	// disabled and accounts are created verified) but stays a
	// distinct case for when the flow is reinstated.
	ErrNotVerified = errors.New("user is not verified")

	// ErrAccessDenied covers every refresh failure: unknown user or
	// session, cross-account session id, stale or replayed secret.
	ErrAccessDenied = errors.New("access denied")

	ErrDuplicateUser = errors.New("user already exists")

	// ErrDependencyUnavailable marks store outages so callers do not
	// mistake an infrastructure fault for bad credentials.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
