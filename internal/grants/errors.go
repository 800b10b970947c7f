package grants

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("grants: not found")
	ErrConflict     = errors.New("grants: resource conflict")
	ErrInvalidInput = errors.New("grants: invalid input")
	ErrForbidden    = errors.New("grants: forbidden")

	// ErrIllegalTransition marks lifecycle moves the state machine rejects.
	// Concrete failures are reported as *TransitionError wrapping it.
	ErrIllegalTransition = errors.New("grants: illegal transition")
)

// TransitionError describes a rejected lifecycle transition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("grants: illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
