package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means the store could not be reached or rejected authentication.
	ErrConnection = errors.New("connection error")
	// ErrPermission means the connected principal may not perform an administrative action.
	ErrPermission = errors.New("permission error")
	// ErrConflict means an entity exists with a definition incompatible with its declaration.
	ErrConflict = errors.New("conflict error")
	// ErrSpec means the provisioning spec itself is malformed.
	ErrSpec = errors.New("spec error")

	// ErrAlreadyExists is returned by a store when a create raced with another writer.
	ErrAlreadyExists = errors.New("already exists")
)

// Provisioning steps, in execution order.
const (
	StepValidate   = "validate"
	StepConnect    = "connect"
	StepCredential = "credential"
	StepCollection = "collection"
	StepIndex      = "index"
)

// StepError names the step and entity a failure happened on.
type StepError struct {
	Step   string
	Entity string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Step, e.Entity, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func specError(entity, msg string) error {
	return &StepError{
		Step:   StepValidate,
		Entity: entity,
		Err:    fmt.Errorf("%w: %s", ErrSpec, msg),
	}
}

// Kind returns the taxonomy sentinel err belongs to, or nil if none.
func Kind(err error) error {
	for _, kind := range []error{ErrConnection, ErrPermission, ErrConflict, ErrSpec} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
