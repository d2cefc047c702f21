package domain

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidKey is returned when a dispatch key is not 2-24 lowercase alphanumerics
	ErrInvalidKey = errors.New("invalid dispatch key")

	// ErrUnauthorized marks every signature verification failure
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingCredentials is returned when a secret is configured but the trigger
	// carries no timestamp or signature
	ErrMissingCredentials = errors.New("missing signature or timestamp")

	// ErrStaleTimestamp is returned when the trigger timestamp is outside the replay window
	ErrStaleTimestamp = errors.New("signature timestamp expired")

	// ErrBadSignature is returned when the HMAC does not match
	ErrBadSignature = errors.New("invalid signature")

	// ErrJobNotFound is returned when a job id is unknown
	ErrJobNotFound = errors.New("job not found")

	// ErrPortalNotFound is returned when the catalog has no entry for a key
	ErrPortalNotFound = errors.New("portal not found")

	// ErrActionFailure marks failures reported by an action executor
	ErrActionFailure = errors.New("action failed")

	// ErrCatalogUnavailable is returned when the portal catalog cannot be read or parsed
	ErrCatalogUnavailable = errors.New("portal catalog unavailable")

	// ErrInvalidTransition is returned when a status change would break the job state machine
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// UnauthorizedReason returns the client-facing explanation for a verification failure.
func UnauthorizedReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "Missing signature or timestamp"
	case errors.Is(err, ErrStaleTimestamp):
		return "Signature timestamp expired"
	case errors.Is(err, ErrBadSignature):
		return "Invalid signature"
	default:
		return "Unauthorized"
	}
}
