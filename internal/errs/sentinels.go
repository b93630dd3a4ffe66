// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the principal is not allowed to perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput indicates malformed or missing fields, or a disallowed payload.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPayloadTooLarge indicates an upload above the configured ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidState indicates the operation is not permitted in the entity's current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrExpired indicates a collaboration token that existed but is past its validity.
	ErrExpired = errors.New("expired")

	// ErrConflict indicates a uniqueness violation (e.g. order number collision).
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")
)

// Machine-readable error codes exposed at the API boundary.
const (
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeInvalidInput    = "invalid_input"
	CodePayloadTooLarge = "payload_too_large"
	CodeInvalidState    = "invalid_state"
	CodeExpired         = "expired"
	CodeConflict        = "conflict"
	CodeUnauthorized    = "unauthorized"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrPayloadTooLarge, CodePayloadTooLarge},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrInvalidState, CodeInvalidState},
	{ErrExpired, CodeExpired},
	{ErrConflict, CodeConflict},
	{ErrAlreadyExists, CodeConflict},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrRateLimited, CodeRateLimited},
}

// Code returns the machine-readable kind of err. Anything not wrapping a
// sentinel is reported as CodeInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
