package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haivivi/playground/pkg/genx"
	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/session"
	"github.com/haivivi/playground/pkg/storage"
	"github.com/haivivi/playground/pkg/tools"
	"github.com/haivivi/playground/pkg/turn"
)

// echoGenerator answers with the model id and the last user text, and
// fails when asked to "explode".
type echoGenerator struct {
	model string
}

func (g *echoGenerator) Complete(_ context.Context, mctx genx.ModelContext) (*genx.Completion, error) {
	msgs := slices.Collect(mctx.Messages())
	last := msgs[len(msgs)-1].Payload.(genx.Contents).String()
	if last == "explode" {
		return nil, errors.New("upstream exploded")
	}
	return &genx.Completion{
		Text:  g.model + ": " + last,
		Usage: genx.Usage{PromptTokenCount: 7, GeneratedTokenCount: 3},
	}, nil
}

type testEnv struct {
	srv     *httptest.Server
	reg     *registry.Registry
	noCreds atomic.Bool
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, staticDir string) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{}

	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)

	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := session.New(ctx, session.Config{}, session.Options{
		Files:      local,
		Logger:     quietLogger(),
		OnDegraded: metrics.ObserveDegraded,
	})
	if err != nil {
		t.Fatal(err)
	}
	builtin, err := tools.Builtin(tools.Options{})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.New(ctx, registry.Options{
		Factory: func(s registry.ModelSettings) (genx.Generator, error) {
			if env.noCreds.Load() {
				return nil, genx.ErrMissingCredential
			}
			return &echoGenerator{model: s.ModelID}, nil
		},
		Tools:  builtin,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	env.reg = reg

	s := &Server{
		Turns: &turn.Coordinator{
			Store:       store,
			Registry:    reg,
			Logger:      quietLogger(),
			OnSaveError: metrics.ObserveSaveError,
		},
		Registry:  reg,
		Metrics:   metrics,
		Gatherer:  promReg,
		StaticDir: staticDir,
		Logger:    quietLogger(),
	}
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	status, body := env.do(t, http.MethodGet, "/health", "")
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", status, body)
	}
}

func TestAgentAndConversations(t *testing.T) {
	env := newTestEnv(t, "")

	status, body := env.do(t, http.MethodPost, "/agent", `{"prompt":"hi","userId":"alice"}`)
	if status != http.StatusOK {
		t.Fatalf("agent status = %d %v", status, body)
	}
	msg := body["messages"].(map[string]any)
	if msg["role"] != "assistant" || msg["content"] != registry.DefaultModelID+": hi" {
		t.Errorf("reply = %v", msg)
	}
	if body["totalTokens"] != float64(10) {
		t.Errorf("totalTokens = %v", body["totalTokens"])
	}
	summary := body["summary"].(map[string]any)
	if summary["total_cycles"] != float64(1) {
		t.Errorf("summary = %v", summary)
	}

	status, body = env.do(t, http.MethodPost, "/strandsplayground_agent", `{"prompt":"again","userId":"alice"}`)
	if status != http.StatusOK {
		t.Fatalf("alias status = %d %v", status, body)
	}

	for _, path := range []string{"/conversations?userId=alice", "/get_conversations?userId=alice"} {
		status, body = env.do(t, http.MethodGet, path, "")
		if status != http.StatusOK {
			t.Fatalf("%s status = %d", path, status)
		}
		msgs := body["messages"].([]any)
		if len(msgs) != 4 {
			t.Errorf("%s: %d messages, want 4", path, len(msgs))
		}
	}

	status, body = env.do(t, http.MethodGet, "/conversations?userId=bob", "")
	if status != http.StatusOK || len(body["messages"].([]any)) != 0 {
		t.Errorf("bob = %d %v", status, body)
	}
}

func TestAgentErrors(t *testing.T) {
	env := newTestEnv(t, "")
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"traversal user", http.MethodPost, "/agent", `{"prompt":"hi","userId":"../etc/passwd"}`, http.StatusBadRequest},
		{"missing user", http.MethodGet, "/conversations", "", http.StatusBadRequest},
		{"bad json", http.MethodPost, "/agent", `{"prompt":`, http.StatusBadRequest},
		{"empty prompt", http.MethodPost, "/agent", `{"prompt":" ","userId":"alice"}`, http.StatusBadRequest},
		{"agent failure", http.MethodPost, "/agent", `{"prompt":"explode","userId":"alice"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d (%v)", status, tt.status, body)
			}
			if _, ok := body["error"]; !ok {
				t.Errorf("body has no error: %v", body)
			}
		})
	}

	_, body := env.do(t, http.MethodGet, "/conversations?userId=alice", "")
	if n := len(body["messages"].([]any)); n != 0 {
		t.Errorf("failed turn saved %d messages", n)
	}
}

func TestSystemPrompt(t *testing.T) {
	env := newTestEnv(t, "")
	_, body := env.do(t, http.MethodGet, "/system_prompt", "")
	if body["systemPrompt"] != registry.DefaultSystemPrompt {
		t.Errorf("default = %v", body)
	}
	status, body := env.do(t, http.MethodPost, "/system_prompt", `{"systemPrompt":"be terse"}`)
	if status != http.StatusOK || body["systemPrompt"] != "be terse" {
		t.Errorf("set = %d %v", status, body)
	}
	if env.reg.SystemPrompt() != "be terse" {
		t.Error("registry not updated")
	}
}

func TestModelSettings(t *testing.T) {
	env := newTestEnv(t, "")

	status, body := env.do(t, http.MethodPost, "/model_settings",
		`{"modelId":"openai/gpt-4o-mini","region":"https://example.com/v1","maxTokens":256}`)
	if status != http.StatusOK {
		t.Fatalf("set status = %d %v", status, body)
	}
	if body["modelId"] != "openai/gpt-4o-mini" || body["region"] != "https://example.com/v1" ||
		body["maxTokens"] != float64(256) || body["temperature"] != registry.DefaultTemperature {
		t.Errorf("set = %v", body)
	}

	_, body = env.do(t, http.MethodPost, "/agent", `{"prompt":"hi","userId":"alice"}`)
	if got := body["messages"].(map[string]any)["content"]; got != "openai/gpt-4o-mini: hi" {
		t.Errorf("turn after settings change used %v", got)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing region", `{"modelId":"m"}`, http.StatusBadRequest},
		{"bad url", `{"modelId":"m","region":"nowhere"}`, http.StatusBadRequest},
		{"bad temperature", `{"modelId":"m","region":"https://x.io","temperature":9}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := env.do(t, http.MethodPost, "/model_settings", tt.body); status != tt.status {
				t.Errorf("status = %d, want %d (%v)", status, tt.status, body)
			}
		})
	}

	env.noCreds.Store(true)
	status, _ = env.do(t, http.MethodPost, "/model_settings", `{"modelId":"m","region":"https://x.io"}`)
	if status != http.StatusInternalServerError {
		t.Errorf("missing credential status = %d", status)
	}
	_, body = env.do(t, http.MethodGet, "/model_settings", "")
	if body["modelId"] != "openai/gpt-4o-mini" {
		t.Errorf("failed update changed settings: %v", body)
	}
}

func TestTools(t *testing.T) {
	env := newTestEnv(t, "")

	for _, path := range []string{"/available_tools", "/get_available_tools"} {
		status, body := env.do(t, http.MethodGet, path, "")
		if status != http.StatusOK {
			t.Fatalf("%s status = %d", path, status)
		}
		available := body["available_tools"].([]any)
		if !slices.Contains(available, any(tools.NestedAgentName)) {
			t.Errorf("available = %v", available)
		}
		if len(body["selected_tools"].([]any)) != len(tools.DefaultSelection) {
			t.Errorf("selected = %v", body["selected_tools"])
		}
		if _, ok := body["tool_descriptions"].(map[string]any)["calculator"]; !ok {
			t.Errorf("descriptions = %v", body["tool_descriptions"])
		}
	}

	status, body := env.do(t, http.MethodPost, "/update_tools", `{"tools":["think","current_time"]}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("update = %d %v", status, body)
	}

	status, body = env.do(t, http.MethodPost, "/update_tools", `{"tools":["calculator","bogus_tool"]}`)
	if status != http.StatusBadRequest {
		t.Errorf("bogus status = %d", status)
	}
	if !strings.Contains(body["error"].(string), "bogus_tool") {
		t.Errorf("error = %v", body["error"])
	}
	if !slices.Equal(env.reg.SelectedTools(), []string{"think", "current_time"}) {
		t.Errorf("selection changed: %v", env.reg.SelectedTools())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/agent", `{"prompt":"hi","userId":"alice"}`)

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`playground_turns_total{outcome="ok"} 1`,
		`playground_tokens_total{kind="input"} 7`,
		`playground_http_requests_total{method="POST",route="/agent",status="200"} 1`,
	} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>playground</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, dir)

	resp, err := http.Get(env.srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "playground") {
		t.Errorf("index = %d %q", resp.StatusCode, raw)
	}

	status, body := env.do(t, http.MethodGet, "/health", "")
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Error("static handler shadows API routes")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&registry.UnknownToolError{Name: "x"}, http.StatusBadRequest},
		{&turn.AgentExecutionError{UserID: "a", Err: errors.New("x")}, http.StatusBadGateway},
		{genx.ErrMissingCredential, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
