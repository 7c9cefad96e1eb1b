package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/haivivi/playground/pkg/storage"
)

// fileBackend keeps one {"messages": [...]} record per user at <user>.json.
type fileBackend struct {
	files storage.FileStore
}

func (*fileBackend) name() string { return BackendFile }

func recordPath(userID string) string {
	return userID + ".json"
}

func (f *fileBackend) load(ctx context.Context, userID string) (History, error) {
	r, err := f.files.Read(ctx, recordPath(userID))
	if errors.Is(err, os.ErrNotExist) {
		return History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", userID, err)
	}
	defer r.Close()

	var rec record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", userID, err)
	}
	return rec.Messages, nil
}

func (f *fileBackend) save(ctx context.Context, userID string, h History) error {
	b, err := json.MarshalIndent(record{Messages: h}, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", userID, err)
	}
	w, err := f.files.Write(ctx, recordPath(userID))
	if err != nil {
		return fmt.Errorf("session: write %s: %w", userID, err)
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return fmt.Errorf("session: write %s: %w", userID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("session: write %s: %w", userID, err)
	}
	return nil
}
