// Package tools holds the built-in tool set offered to the agent.
//
// Each tool is a *genx.FuncTool; a Catalog indexes them by name. Tool
// bodies are deliberately small: they exist to exercise the tool-calling
// loop, not to be complete integrations.
package tools

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/haivivi/playground/pkg/genx"
	"github.com/haivivi/playground/pkg/storage"
)

const (
	CalculatorName  = "calculator"
	CurrentTimeName = "current_time"
	HTTPRequestName = "http_request"
	EnvironmentName = "environment"
	FileReadName    = "file_read"
	FileWriteName   = "file_write"
	ThinkName       = "think"
	WeatherName     = "weather_forecast"
	NestedAgentName = "use_openrouter_llm"
)

// DefaultSelection is the tool set active on a fresh start.
var DefaultSelection = []string{CalculatorName, HTTPRequestName, CurrentTimeName}

// Info describes a tool for listings.
type Info struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Catalog is an immutable set of tools with unique names.
type Catalog struct {
	tools map[string]*genx.FuncTool
}

// NewCatalog indexes tools. Duplicate names are an error.
func NewCatalog(tools ...*genx.FuncTool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]*genx.FuncTool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		if _, dup := c.tools[t.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool name %q", t.Name)
		}
		c.tools[t.Name] = t
	}
	return c, nil
}

// Lookup returns the tool named name.
func (c *Catalog) Lookup(name string) (*genx.FuncTool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Names returns all tool names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tools))
	for n := range c.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns name and description of every tool, sorted by name.
func (c *Catalog) List() []Info {
	out := make([]Info, 0, len(c.tools))
	for _, n := range c.Names() {
		out = append(out, Info{Name: n, Description: c.tools[n].Description})
	}
	return out
}

// Options configures the built-in tools.
type Options struct {
	// HTTPClient is used by http_request. Defaults to a client with a 30s
	// timeout.
	HTTPClient *http.Client

	// MaxResponseBytes caps http_request response bodies. Defaults to 1MB.
	MaxResponseBytes int64

	// Workspace backs file_read and file_write. When nil those tools are
	// not registered.
	Workspace storage.FileStore

	// EnvPrefixes limits which variables environment may read. Empty
	// means only PLAYGROUND_ variables.
	EnvPrefixes []string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Builtin returns every built-in tool except the nested agent, which needs
// a Resolver and is added by the registry.
func Builtin(opts Options) ([]*genx.FuncTool, error) {
	calc, err := NewCalculator()
	if err != nil {
		return nil, err
	}
	out := []*genx.FuncTool{
		calc,
		newCurrentTime(&opts),
		newHTTPRequest(&opts),
		newEnvironment(&opts),
		newThink(),
		newWeather(&opts),
	}
	if opts.Workspace != nil {
		out = append(out, newFileRead(opts.Workspace), newFileWrite(opts.Workspace))
	}
	return out, nil
}
