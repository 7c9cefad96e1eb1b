package session

import (
	"context"
	"log/slog"
)

// disabledBackend stands in for a misconfigured table: reads are empty and
// writes are dropped.
type disabledBackend struct {
	log    *slog.Logger
	reason string
}

func newDisabled(log *slog.Logger, reason string) *disabledBackend {
	log.Warn("session: history persistence disabled", "reason", reason)
	return &disabledBackend{log: log, reason: reason}
}

func (*disabledBackend) name() string { return BackendDisabled }

func (d *disabledBackend) load(ctx context.Context, userID string) (History, error) {
	d.log.DebugContext(ctx, "session: load skipped", "user", userID, "reason", d.reason)
	return History{}, nil
}

func (d *disabledBackend) save(ctx context.Context, userID string, _ History) error {
	d.log.DebugContext(ctx, "session: save skipped", "user", userID, "reason", d.reason)
	return nil
}
