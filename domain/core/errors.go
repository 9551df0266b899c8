package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Ingestion errors
	ErrDimensionMismatch = errors.New("covariate dimension mismatch")
	ErrDuplicateSubject  = errors.New("duplicate subject id")
	ErrMissingValue      = errors.New("missing or non-finite value")
	ErrEmptyCohort       = errors.New("cohort has no subjects")

	// Matching errors
	ErrSingularCovariance   = errors.New("covariance matrix is singular")
	ErrEmptyGroup           = errors.New("empty treatment group")
	ErrInfeasibleAssignment = errors.New("assignment is infeasible")

	// Testing errors
	ErrInsufficientPairs = errors.New("insufficient matched pairs")

	// Repository errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)
)

// Error constructors with context

func NewDimensionMismatchError(id SubjectID, got, want int) error {
	return fmt.Errorf("%w: subject %s has %d covariates, expected %d", ErrDimensionMismatch, id, got, want)
}

func NewDuplicateSubjectError(id SubjectID) error {
	return fmt.Errorf("%w: %s", ErrDuplicateSubject, id)
}

func NewMissingValueError(id SubjectID, field string) error {
	return fmt.Errorf("%w: subject %s field %s", ErrMissingValue, id, field)
}

func NewEmptyGroupError(group string) error {
	return fmt.Errorf("%w: %s group has no members", ErrEmptyGroup, group)
}

func NewSingularCovarianceError(detail string) error {
	return fmt.Errorf("%w: %s", ErrSingularCovariance, detail)
}

func NewInsufficientPairsError(got, want int) error {
	return fmt.Errorf("%w: found %d, need at least %d", ErrInsufficientPairs, got, want)
}

func NewInfeasibleAssignmentError(id SubjectID) error {
	return fmt.Errorf("%w: treated subject %s has no eligible control", ErrInfeasibleAssignment, id)
}

func NewRunNotFoundError(id RunID) error {
	return fmt.Errorf("%w with id %s", ErrRunNotFound, id)
}

// Error checking helpers

func IsIngestionError(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrDuplicateSubject) ||
		errors.Is(err, ErrMissingValue) ||
		errors.Is(err, ErrEmptyCohort)
}

func IsMatchingError(err error) bool {
	return errors.Is(err, ErrSingularCovariance) ||
		errors.Is(err, ErrEmptyGroup) ||
		errors.Is(err, ErrInfeasibleAssignment)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
