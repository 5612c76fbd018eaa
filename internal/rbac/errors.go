package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrStoreUnavailable indicates the assignment or catalog storage could not
	// be read or written. It is never a synonym for "no permissions".
	ErrStoreUnavailable = errors.New("rbac: store unavailable")
	// ErrInvalidDefinition indicates a malformed catalog or role definition.
	ErrInvalidDefinition = errors.New("rbac: invalid definition")
)

// StoreError wraps a storage failure. It matches ErrStoreUnavailable and the
// underlying cause under errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("rbac: store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStoreUnavailable) succeed.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// storeFailure classifies err coming from the repository. Domain errors pass
// through untouched; everything else, timeouts included, becomes a StoreError.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidDefinition) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
