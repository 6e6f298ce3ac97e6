// Package apperr holds the error taxonomy shared by the pipeline stages.
package apperr

import (
	"errors"
	"fmt"
)

// MissingInputError reports an upstream artifact (ledger, feature table) that does not exist.
type MissingInputError struct {
	Artifact string // e.g. "ledger", "feature table"
	Location string // path, URI or key that was expected
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input: %s not found at %s", e.Artifact, e.Location)
}

// InsufficientDataError reports a stage input that cannot support the computation.
type InsufficientDataError struct {
	Reason string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	if e.Need > 0 {
		return fmt.Sprintf("insufficient data: %s (have %d, need %d)", e.Reason, e.Have, e.Need)
	}
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}

// ComputationWarning marks an account whose inter-arrival statistics are undefined.
// It is never returned as an error from a stage; stages collect and log them.
type ComputationWarning struct {
	Account      string
	Observations int
}

func (w ComputationWarning) Error() string {
	return fmt.Sprintf("account %s: insufficient history for inter-arrival stats (%d observations)", w.Account, w.Observations)
}

// NewMissingInput returns a *MissingInputError.
func NewMissingInput(artifact, location string) error {
	return &MissingInputError{Artifact: artifact, Location: location}
}

// IsMissingInput reports whether err wraps a *MissingInputError.
func IsMissingInput(err error) bool {
	var target *MissingInputError
	return errors.As(err, &target)
}

// IsInsufficientData reports whether err wraps an *InsufficientDataError.
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}
