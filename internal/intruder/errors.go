package intruder

import (
	"errors"
	"fmt"
)

// ErrLockedOut matches every *LockedOutError via errors.Is.
var ErrLockedOut = errors.New("intruder: locked out")

// LockedOutError reports that a key is currently locked.
type LockedOutError struct {
	Dimension Dimension
	Key       string
	Code      string
	Attempts  uint32
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("intruder: %s %q locked out after %d failed attempts (%s)", e.Dimension, e.Key, e.Attempts, e.Code)
}

func (e *LockedOutError) Is(target error) bool { return target == ErrLockedOut }
