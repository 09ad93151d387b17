package model

import "errors"

var (
	// ErrValidation marks bad or missing input at a construction boundary.
	ErrValidation = errors.New("validation error")
	// ErrInvalidIndex marks an answer selection outside the option bounds.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrPrecondition marks a state-machine transition that is not allowed now.
	ErrPrecondition = errors.New("precondition violation")
	// ErrExternalGrading marks an unreachable grader or a malformed grading response.
	ErrExternalGrading = errors.New("external grading failure")
	// ErrNotFound marks a lookup of an unknown id.
	ErrNotFound = errors.New("not found")
)
