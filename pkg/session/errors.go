package session

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidIdentifier is returned when a user id fails ValidUserID.
var ErrInvalidIdentifier = errors.New("session: invalid user identifier")

func invalidID(id string) error {
	return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
}

// StorageError describes a backend failure that was absorbed instead of
// returned. It is logged and handed to Options.OnDegraded.
type StorageError struct {
	Op      string
	Backend string
	UserID  string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session: %s %s for %s: %v", e.Backend, e.Op, e.UserID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// LogValue implements slog.LogValuer.
func (e *StorageError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("op", e.Op),
		slog.String("backend", e.Backend),
		slog.String("user", e.UserID),
		slog.Any("err", e.Err),
	)
}
