package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is returned for a transition that is not legal from the
	// draft's current state. It indicates a caller bug or a lost race, never
	// an expected condition, so it is surfaced rather than swallowed.
	ErrInvalidState = errors.New("transition not allowed from current state")

	// ErrUnknownTarget is returned when no policy is configured for the
	// requested platform+target pair.
	ErrUnknownTarget = errors.New("no policy configured for target")

	// ErrBodyTooLong is returned by edit when the new body exceeds the
	// target's configured length limit.
	ErrBodyTooLong = errors.New("body exceeds target length limit")

	ErrDraftNotFound = errors.New("draft not found")
)

// PolicyViolationError carries the moderation reasons that forced a draft into
// the rejected state. Recoverable by a human edit and resubmit.
type PolicyViolationError struct {
	Reasons []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("moderation failed: %s", strings.Join(e.Reasons, ", "))
}
