package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haivivi/playground/pkg/agent"
	"github.com/haivivi/playground/pkg/config"
	"github.com/haivivi/playground/pkg/kv"
	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/server"
	"github.com/haivivi/playground/pkg/session"
	"github.com/haivivi/playground/pkg/storage"
	"github.com/haivivi/playground/pkg/tools"
	"github.com/haivivi/playground/pkg/turn"
)

// app is the wired backend shared by serve and chat.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    session.Store
	state    kv.Store
	registry *registry.Registry
	turns    *turn.Coordinator
	metrics  *server.Metrics
	gatherer prometheus.Gatherer
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.gatherer = promReg
	a.metrics = server.NewMetrics(promReg)

	a.store, err = session.New(ctx, cfg.Session, session.Options{
		Logger:     log,
		OnDegraded: a.metrics.ObserveDegraded,
	})
	if err != nil {
		return nil, err
	}

	if cfg.StateDir != "" {
		db, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.StateDir, Logger: log})
		if err != nil {
			return nil, fmt.Errorf("state: %w", err)
		}
		a.state = db
	}

	topts := tools.Options{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
	if cfg.WorkspaceDir != "" {
		ws, err := storage.NewLocal(cfg.WorkspaceDir)
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
		topts.Workspace = ws
	}
	builtin, err := tools.Builtin(topts)
	if err != nil {
		return nil, err
	}

	runner := &agent.Runner{MaxRounds: cfg.MaxRounds, Logger: log}
	a.registry, err = registry.New(ctx, registry.Options{
		Factory:  registry.OpenAIFactory(cfg.Model.Endpoint(), nil),
		Tools:    builtin,
		Settings: cfg.Settings(),
		State:    a.state,
		Runner:   runner,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	a.metrics.SettingsVersion.Set(float64(a.registry.Snapshot().Version))

	a.turns = &turn.Coordinator{
		Store:       a.store,
		Registry:    a.registry,
		Runner:      runner,
		Logger:      log,
		OnSaveError: a.metrics.ObserveSaveError,
	}
	return a, nil
}

func (a *app) server() *server.Server {
	return &server.Server{
		Turns:     a.turns,
		Registry:  a.registry,
		Metrics:   a.metrics,
		Gatherer:  a.gatherer,
		StaticDir: a.cfg.StaticDir,
		Timeout:   a.cfg.RequestTimeout,
		Logger:    a.log,
	}
}

func (a *app) Close() error {
	var errs []error
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	return errors.Join(errs...)
}
