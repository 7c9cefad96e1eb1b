// Package turn runs one chat request end to end: load the user's history,
// run the agent against a single registry snapshot, and save the result.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/playground/pkg/agent"
	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/session"
)

// ErrAgentExecutionFailed matches *AgentExecutionError.
var ErrAgentExecutionFailed = errors.New("turn: agent execution failed")

// AgentExecutionError wraps a failure of the agent run. History is not
// saved when a turn fails this way.
type AgentExecutionError struct {
	UserID string
	Err    error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent execution failed for %s: %v", e.UserID, e.Err)
}

func (e *AgentExecutionError) Unwrap() error {
	return e.Err
}

func (e *AgentExecutionError) Is(target error) bool {
	return target == ErrAgentExecutionFailed
}

// Result is what a turn returns to the caller.
type Result struct {
	Reply   session.Message
	History session.History
	Metrics *agent.Metrics
}

// Coordinator runs turns. Turns of one user are serialized; different
// users run concurrently.
type Coordinator struct {
	Store    session.Store
	Registry *registry.Registry
	Runner   *agent.Runner
	Logger   *slog.Logger

	// OnSaveError is called when a finished turn could not be saved.
	OnSaveError func(userID string, err error)

	locks keyedMutex
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// History returns the stored conversation of userID.
func (c *Coordinator) History(ctx context.Context, userID string) (session.History, error) {
	return c.Store.Load(ctx, userID)
}

// RunTurn answers prompt for userID and persists the updated history.
func (c *Coordinator) RunTurn(ctx context.Context, userID, prompt string) (*Result, error) {
	if !session.ValidUserID(userID) {
		return nil, fmt.Errorf("%w: %q", session.ErrInvalidIdentifier, userID)
	}
	unlock := c.locks.lock(userID)
	defer unlock()

	log := c.logger().With("user", userID)
	history, err := c.Store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := c.Registry.Snapshot()
	runner := c.Runner
	if runner == nil {
		runner = &agent.Runner{Logger: c.Logger}
	}
	res, err := runner.Run(ctx, snap.Generator, agent.Request{
		SystemPrompt: snap.SystemPrompt,
		History:      history.ToGenx(),
		Prompt:       prompt,
		Tools:        snap.Selected,
		Params:       snap.Settings.Params(),
	})
	if err != nil {
		log.Error("agent run failed", "model", snap.Settings.ModelID, "err", err)
		return nil, &AgentExecutionError{UserID: userID, Err: err}
	}

	updated := session.FromGenx(res.Messages)
	if err := c.Store.Save(ctx, userID, updated); err != nil {
		log.Error("save history", "err", err)
		if c.OnSaveError != nil {
			c.OnSaveError(userID, err)
		}
	}
	log.Info("turn done",
		"model", snap.Settings.ModelID,
		"cycles", res.Metrics.Cycles,
		"tokens", res.Metrics.Usage.Total(),
		"latency", res.Metrics.Latency,
	)
	return &Result{
		Reply:   session.Message{Role: session.RoleAssistant, Content: res.Reply},
		History: updated,
		Metrics: res.Metrics,
	}, nil
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
