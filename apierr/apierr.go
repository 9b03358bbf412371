// Package apierr defines the sentinel error kinds from SPEC_FULL.md
// section 7 and the HTTP status each maps to. Every layer wraps these
// with fmt.Errorf("...: %w", err) so callers can errors.Is/errors.As
// through controller, handler and store boundaries.
package apierr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnsupportedMediaType is returned when the request's content
	// type is not an activity media type. Maps to 404, matching the
	// teacher's historical compatibility quirk (SPEC_FULL.md section 9).
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrInvalidActivity is returned by the normalizer when a document
	// lacks a type, or an activity lacks an actor.
	ErrInvalidActivity = errors.New("invalid activity")

	// ErrUnknownActor is returned when the local actor named in the
	// request path is not provisioned on this instance.
	ErrUnknownActor = errors.New("actor not found on this instance")

	// ErrOwnershipViolation is returned when a Delete, Undo, Add or
	// Remove targets something the sender does not own.
	ErrOwnershipViolation = errors.New("ownership violation")

	// ErrMissingTarget is returned by Add/Remove without a target, or
	// Like without an object.
	ErrMissingTarget = errors.New("missing required target or object")

	// ErrUpstreamFetchFailure is returned by the actor resolver when a
	// remote actor cannot be fetched during audience expansion. Callers
	// must skip the affected recipient rather than fail the request.
	ErrUpstreamFetchFailure = errors.New("upstream actor fetch failed")

	// ErrStoreFailure wraps any persistence-layer error. Fatal to the
	// current request.
	ErrStoreFailure = errors.New("store failure")
)

// StatusFor maps a sentinel error kind to the HTTP status code the
// outbox pipeline must answer with. Errors that don't match a known
// kind default to 500, matching the "unexpected == store/internal
// failure" policy in SPEC_FULL.md section 7.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidActivity):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownActor):
		return http.StatusNotFound
	case errors.Is(err, ErrOwnershipViolation):
		return http.StatusForbidden
	case errors.Is(err, ErrMissingTarget):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreFailure):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
