// Package shared contains common domain types, errors and events
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// ErrNotFound - referenced donor or request does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrSelfRequest - requester and donor are the same person.
	ErrSelfRequest = errors.New("cannot request a donation from yourself")

	// ErrDonorNotEligible - donor is inside the donation cooldown window.
	ErrDonorNotEligible = errors.New("donor is not eligible to donate yet")

	// ErrDuplicatePending - a pending request already links the same pair.
	ErrDuplicatePending = errors.New("a pending request already exists for this donor")

	// ErrUnauthorized - actor may not perform the transition.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition - transition is illegal from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidRating - rating missing or outside [1,5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrInvalidInput - malformed argument (empty ID, unknown blood group, ...).
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict - conditional update lost against a concurrent writer.
	// The lifecycle surfaces it as ErrInvalidTransition.
	ErrConflict = errors.New("concurrent modification detected")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "donor", "request"
	Op      string // Operation that failed, e.g., "Accept", "Complete"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NotEligibleError is returned when a donor is still cooling down.
// It matches ErrDonorNotEligible with errors.Is.
type NotEligibleError struct {
	DonorID           string
	DaysUntilEligible int
}

// Error implements the error interface.
func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("donor %s is not eligible for another %d day(s)", e.DonorID, e.DaysUntilEligible)
}

// Is implements errors.Is() matching.
func (e *NotEligibleError) Is(target error) bool {
	return target == ErrDonorNotEligible
}

// DaysUntilEligible extracts the remaining cooldown from err, if any.
func DaysUntilEligible(err error) (int, bool) {
	var ne *NotEligibleError
	if errors.As(err, &ne) {
		return ne.DaysUntilEligible, true
	}
	return 0, false
}

// Donor domain errors
var (
	ErrDonorNotFound    = NewDomainError("donor", "Find", ErrNotFound, "donor not found")
	ErrDonorSuspended   = NewDomainError("donor", "CheckStatus", ErrUnauthorized, "donor account is suspended")
	ErrUnknownBloodType = NewDomainError("donor", "Validate", ErrInvalidInput, "unknown blood group")
)

// Request domain errors
var (
	ErrRequestNotFound     = NewDomainError("request", "Find", ErrNotFound, "blood request not found")
	ErrRequesterSuspended  = NewDomainError("request", "Create", ErrUnauthorized, "requester account is suspended")
	ErrOnlyRequester       = NewDomainError("request", "Complete", ErrUnauthorized, "only the requester can mark this request as completed")
	ErrOnlyDonor           = NewDomainError("request", "Respond", ErrUnauthorized, "only the donor can respond to this request")
	ErrOnlyRequesterCancel = NewDomainError("request", "Cancel", ErrUnauthorized, "only the requester can cancel this request")
	ErrNotParticipant      = NewDomainError("request", "Get", ErrUnauthorized, "actor is not a participant of this request")
	ErrRequestConflict     = NewDomainError("request", "UpdateStatus", ErrConflict, "request status changed concurrently")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a lost conditional update.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
