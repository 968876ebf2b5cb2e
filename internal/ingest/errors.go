package ingest

import (
	"errors"
	"fmt"

	"github.com/mkmilan/travel-server/internal/store"
)

// State is the terminal state of an ingestion.
type State string

const (
	StateRejected      State = "rejected"
	StateStorageFailed State = "storage_failed"
	StatePersistFailed State = "persist_failed"
	StateCommitted     State = "committed"
)

var (
	ErrRejected      = errors.New("ingestion rejected")
	ErrStorageFailed = errors.New("ingestion storage failed")
	ErrPersistFailed = errors.New("ingestion persist failed")

	ErrInvalidRequest = errors.New("invalid request")
	ErrDuplicate      = errors.New("trip already submitted")
	ErrForbidden      = errors.New("trip belongs to another user")
	ErrPhotoNotFound  = errors.New("photo not found on trip")
	ErrTripNotFound   = store.ErrTripNotFound
)

func (s State) sentinel() error {
	switch s {
	case StateRejected:
		return ErrRejected
	case StateStorageFailed:
		return ErrStorageFailed
	case StatePersistFailed:
		return ErrPersistFailed
	}
	return nil
}

// Error is returned by operations that end in a failed State. It matches
// both the state's sentinel and the underlying cause with errors.Is.
type Error struct {
	State State
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.State, e.Stage, e.Err)
}

func (e *Error) Unwrap() []error {
	if s := e.State.sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

// StateOf reports the terminal state carried by err. A nil error is
// Committed; errors without a state are reported as PersistFailed.
func StateOf(err error) State {
	if err == nil {
		return StateCommitted
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.State
	}
	return StatePersistFailed
}

func rejected(stage string, err error) error {
	return &Error{State: StateRejected, Stage: stage, Err: err}
}
