// Package registry holds the live configuration read by every turn: model
// settings with the client built from them, the system prompt, and the
// selected tools.
//
// Readers get an immutable *Snapshot without locking. Writers are
// serialized; each write builds a complete new snapshot and publishes it
// atomically, so a turn never sees a new client with old settings or a
// half-applied tool selection.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/haivivi/playground/pkg/agent"
	"github.com/haivivi/playground/pkg/genx"
	"github.com/haivivi/playground/pkg/kv"
	"github.com/haivivi/playground/pkg/tools"
)

// DefaultSystemPrompt is the system prompt on a fresh start.
const DefaultSystemPrompt = "You are a helpful assistant running in the Agent Playground, a small backend for experimenting with tool-using agents.\n" +
	"The user has the ability to modify your set of built-in tools. Every time your tool set is changed, " +
	"you can propose a new set of tasks that you can do.\n"

// ErrUnknownTool matches *UnknownToolError.
var ErrUnknownTool = errors.New("registry: unknown tool")

// UnknownToolError names a tool that is not in the catalog.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "Unknown tool: " + e.Name
}

func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}

// stateKey is where the registry persists its state in a kv.Store.
var stateKey = kv.Key{"registry", "state"}

// Snapshot is one coherent view of the configuration. It must not be
// modified.
type Snapshot struct {
	Version      uint64
	Settings     ModelSettings
	SystemPrompt string
	Selected     []*genx.FuncTool
	Generator    genx.Generator
}

// SelectedNames returns the names of the selected tools in order.
func (s *Snapshot) SelectedNames() []string {
	names := make([]string, len(s.Selected))
	for i, t := range s.Selected {
		names[i] = t.Name
	}
	return names
}

// Options configures New.
type Options struct {
	// Factory builds model clients. Required.
	Factory GeneratorFactory

	// Tools are the built-in tools. The nested agent tool is added by New.
	Tools []*genx.FuncTool

	// Settings are the startup settings. A zero value means
	// DefaultSettings("", "").
	Settings ModelSettings

	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string

	// Selected defaults to tools.DefaultSelection.
	Selected []string

	// State, when set, persists every change and is restored from on New.
	State kv.Store

	// Runner runs the nested agent tool.
	Runner *agent.Runner

	Logger *slog.Logger
}

// Registry is safe for concurrent use.
type Registry struct {
	catalog *tools.Catalog
	factory GeneratorFactory
	state   kv.Store
	log     *slog.Logger

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[Snapshot]
}

// persisted is the msgpack record under stateKey.
type persisted struct {
	Settings     ModelSettings `msgpack:"settings"`
	SystemPrompt string        `msgpack:"system_prompt"`
	Selected     []string      `msgpack:"selected"`
}

// New builds the catalog, restores persisted state if any, and builds the
// first model client. It fails with genx.ErrMissingCredential when the
// factory has no credential.
func New(ctx context.Context, opts Options) (*Registry, error) {
	if opts.Factory == nil {
		return nil, errors.New("registry: generator factory is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		factory: opts.Factory,
		state:   opts.State,
		log:     log,
	}
	runner := opts.Runner
	if runner == nil {
		runner = &agent.Runner{Logger: log}
	}
	catalog, err := tools.NewCatalog(slices.Concat(opts.Tools, []*genx.FuncTool{tools.NewNestedAgent(r, runner)})...)
	if err != nil {
		return nil, err
	}
	r.catalog = catalog

	cur := persisted{
		Settings:     opts.Settings,
		SystemPrompt: opts.SystemPrompt,
		Selected:     opts.Selected,
	}
	if cur.Settings == (ModelSettings{}) {
		cur.Settings = DefaultSettings("", "")
	}
	if cur.SystemPrompt == "" {
		cur.SystemPrompt = DefaultSystemPrompt
	}
	if cur.Selected == nil {
		cur.Selected = tools.DefaultSelection
	}
	if restored, ok := r.restore(ctx); ok {
		cur = restored
	}

	if err := cur.Settings.Validate(); err != nil {
		return nil, err
	}
	gen, err := r.factory(cur.Settings)
	if err != nil {
		return nil, fmt.Errorf("registry: build model client: %w", err)
	}
	selected, err := r.resolve(cur.Selected)
	if err != nil {
		return nil, err
	}
	r.snap.Store(&Snapshot{
		Version:      1,
		Settings:     cur.Settings,
		SystemPrompt: cur.SystemPrompt,
		Selected:     selected,
		Generator:    gen,
	})
	log.Info("registry ready",
		"model", cur.Settings.ModelID,
		"base_url", cur.Settings.BaseURL,
		"tools", cur.Selected,
	)
	return r, nil
}

// restore loads persisted state. Unknown tool names are dropped. A record
// that fails to decode or holds invalid settings is deleted.
func (r *Registry) restore(ctx context.Context) (persisted, bool) {
	if r.state == nil {
		return persisted{}, false
	}
	p, err := kv.GetValue[persisted](ctx, r.state, stateKey)
	if errors.Is(err, kv.ErrNotFound) {
		return persisted{}, false
	}
	if err == nil {
		err = p.Settings.Validate()
	}
	if err != nil {
		r.log.Warn("registry: discarding persisted state", "err", err)
		if err := r.state.Delete(ctx, stateKey); err != nil {
			r.log.Warn("registry: delete persisted state", "err", err)
		}
		return persisted{}, false
	}
	kept := make([]string, 0, len(p.Selected))
	for _, name := range p.Selected {
		if _, ok := r.catalog.Lookup(name); !ok {
			r.log.Warn("registry: dropping unknown persisted tool", "tool", name)
			continue
		}
		kept = append(kept, name)
	}
	p.Selected = kept
	r.log.Info("registry: restored state", "model", p.Settings.ModelID, "tools", kept)
	return p, true
}

// resolve maps names to tools. Duplicates collapse to the first
// occurrence; an unknown name fails the whole call.
func (r *Registry) resolve(names []string) ([]*genx.FuncTool, error) {
	seen := make(map[string]bool, len(names))
	out := make([]*genx.FuncTool, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		t, ok := r.catalog.Lookup(name)
		if !ok {
			return nil, &UnknownToolError{Name: name}
		}
		seen[name] = true
		out = append(out, t)
	}
	return out, nil
}

// Snapshot returns the current configuration.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

func (r *Registry) Settings() ModelSettings {
	return r.Snapshot().Settings
}

func (r *Registry) SystemPrompt() string {
	return r.Snapshot().SystemPrompt
}

func (r *Registry) SelectedTools() []string {
	return r.Snapshot().SelectedNames()
}

// AvailableTools lists every tool in the catalog, sorted by name.
func (r *Registry) AvailableTools() []tools.Info {
	return r.catalog.List()
}

// ToolDescriptions maps every tool name to its description.
func (r *Registry) ToolDescriptions() map[string]string {
	list := r.catalog.List()
	out := make(map[string]string, len(list))
	for _, t := range list {
		out[t.Name] = t.Description
	}
	return out
}

// ResolveNested implements tools.Resolver with the current snapshot.
func (r *Registry) ResolveNested() tools.Nested {
	s := r.Snapshot()
	return tools.Nested{
		Generator: s.Generator,
		Tools:     s.Selected,
		Params:    s.Settings.Params(),
	}
}

// ReplaceSettings applies u and swaps in a client built from the result.
// On any error the current settings and client stay in place.
func (r *Registry) ReplaceSettings(ctx context.Context, u SettingsUpdate) (ModelSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.Snapshot()
	next := u.apply(cur.Settings)
	if err := next.Validate(); err != nil {
		return cur.Settings, err
	}
	gen, err := r.factory(next)
	if err != nil {
		return cur.Settings, fmt.Errorf("registry: build model client: %w", err)
	}
	s := *cur
	s.Settings = next
	s.Generator = gen
	r.publish(ctx, &s)
	r.log.Info("model settings replaced", "model", next.ModelID, "base_url", next.BaseURL, "version", s.Version)
	return next, nil
}

// SetSystemPrompt replaces the system prompt used by later turns.
func (r *Registry) SetSystemPrompt(ctx context.Context, text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *r.Snapshot()
	s.SystemPrompt = text
	r.publish(ctx, &s)
	r.log.Info("system prompt replaced", "len", len(text), "version", s.Version)
	return text
}

// SetSelectedTools replaces the tool selection. Unknown names fail with
// *UnknownToolError and leave the selection unchanged.
func (r *Registry) SetSelectedTools(ctx context.Context, names []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	selected, err := r.resolve(names)
	if err != nil {
		return nil, err
	}
	s := *r.Snapshot()
	s.Selected = selected
	r.publish(ctx, &s)
	out := s.SelectedNames()
	r.log.Info("tools selected", "tools", out, "version", s.Version)
	return out, nil
}

// publish stores s as the next version and persists it. Callers hold mu.
func (r *Registry) publish(ctx context.Context, s *Snapshot) {
	s.Version = r.Snapshot().Version + 1
	r.snap.Store(s)
	if r.state == nil {
		return
	}
	err := kv.SetValue(ctx, r.state, stateKey, persisted{
		Settings:     s.Settings,
		SystemPrompt: s.SystemPrompt,
		Selected:     s.SelectedNames(),
	})
	if err != nil {
		r.log.Error("registry: persist state", "err", err)
	}
}
