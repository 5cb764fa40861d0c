package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityNotFound is returned by the user repository when no row matches.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityExists is returned when a username is already registered.
	ErrIdentityExists = errors.New("identity already exists")
	// ErrInvalidRole is returned when a role string is neither user nor admin.
	ErrInvalidRole = errors.New("invalid role")
	// ErrAgendaNotFound is returned when an agenda item id does not exist.
	ErrAgendaNotFound = errors.New("agenda item not found")
)

// ValidationError reports a missing or malformed form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StorageError wraps a failure of the database or session store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func isStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
