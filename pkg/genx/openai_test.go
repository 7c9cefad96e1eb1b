package genx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type capturedRequest struct {
	Header http.Header
	Body   map[string]any
}

func newChatServer(t *testing.T, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		captured.Header = r.Header.Clone()
		if err := json.Unmarshal(b, &captured.Body); err != nil {
			t.Errorf("request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestGenerator(t *testing.T, baseURL string) *OpenAIGenerator {
	t.Helper()
	g, err := NewOpenAIGenerator(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: baseURL,
		Model:   "test/model",
		Headers: map[string]string{"X-Title": "Playground", "HTTP-Referer": ""},
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator error: %v", err)
	}
	return g
}

func TestNewOpenAIGenerator_MissingCredential(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{Model: "m"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
}

func TestOpenAIGenerator_CompleteText(t *testing.T) {
	srv, captured := newChatServer(t, `{
		"id": "c1", "object": "chat.completion", "created": 1, "model": "test/model",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "Hello there"}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
	}`)
	g := newTestGenerator(t, srv.URL)

	mcb := &ModelContextBuilder{Params: &ModelParams{MaxTokens: 1000, Temperature: 0.3, TopP: 0.9}}
	mcb.PromptText("", "be brief")
	mcb.UserText("", "hi")
	comp, err := g.Complete(context.Background(), mcb.Build())
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if comp.Text != "Hello there" {
		t.Errorf("Text = %q", comp.Text)
	}
	if comp.HasToolCalls() {
		t.Errorf("unexpected tool calls: %v", comp.ToolCalls)
	}
	if comp.Usage.Total() != 15 {
		t.Errorf("Usage.Total() = %d, want 15", comp.Usage.Total())
	}

	if got := captured.Header.Get("X-Title"); got != "Playground" {
		t.Errorf("X-Title = %q", got)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if captured.Body["model"] != "test/model" {
		t.Errorf("model = %v", captured.Body["model"])
	}
	if captured.Body["max_tokens"] != float64(1000) {
		t.Errorf("max_tokens = %v", captured.Body["max_tokens"])
	}
	msgs, _ := captured.Body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	if role := msgs[0].(map[string]any)["role"]; role != "system" {
		t.Errorf("first role = %v, want system", role)
	}
}

func TestOpenAIGenerator_ZeroTemperatureAndExtraFields(t *testing.T) {
	srv, captured := newChatServer(t, `{
		"id": "c3", "object": "chat.completion", "created": 1, "model": "test/model",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "ok"}}]
	}`)
	g, err := NewOpenAIGenerator(OpenAIConfig{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "test/model",
		ExtraFields: map[string]any{"provider": map[string]any{"order": []string{"deepinfra"}}},
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator error: %v", err)
	}

	mcb := &ModelContextBuilder{Params: &ModelParams{MaxTokens: 100, Temperature: 0, TopP: 0.5}}
	mcb.UserText("", "hi")
	if _, err := g.Complete(context.Background(), mcb.Build()); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	temp, ok := captured.Body["temperature"]
	if !ok || temp != float64(0) {
		t.Errorf("temperature = %v (present %v), want 0", temp, ok)
	}
	if captured.Body["top_p"] != float64(0.5) {
		t.Errorf("top_p = %v", captured.Body["top_p"])
	}
	provider, _ := captured.Body["provider"].(map[string]any)
	if order, _ := provider["order"].([]any); len(order) != 1 || order[0] != "deepinfra" {
		t.Errorf("provider = %v", captured.Body["provider"])
	}
}

func TestOpenAIGenerator_CompleteToolCalls(t *testing.T) {
	srv, captured := newChatServer(t, `{
		"id": "c2", "object": "chat.completion", "created": 1, "model": "test/model",
		"choices": [{"index": 0, "finish_reason": "tool_calls",
			"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "echo", "arguments": "{\"name\":\"x\"}"}}]}}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 5, "total_tokens": 10}
	}`)
	g := newTestGenerator(t, srv.URL)

	echo := MustNewFuncTool[testArg]("echo", "echo the name",
		InvokeFunc[testArg](func(ctx context.Context, call *FuncCall, arg testArg) (any, error) {
			return arg.Name, nil
		}),
	)
	mcb := &ModelContextBuilder{}
	mcb.UserText("", "call echo")
	mcb.AddTool(echo)
	comp, err := g.Complete(context.Background(), mcb.Build())
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if len(comp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(comp.ToolCalls))
	}
	call := comp.ToolCalls[0]
	if call.ID != "call_1" || call.FuncCall.Tool() != echo {
		t.Errorf("call = %+v", call)
	}
	res, err := call.Invoke(context.Background())
	if err != nil || res != "x" {
		t.Errorf("Invoke = %v, %v", res, err)
	}
	tools, _ := captured.Body["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("tools sent = %v", captured.Body["tools"])
	}
}

func TestOpenAIGenerator_FinishStates(t *testing.T) {
	tests := []struct {
		name   string
		choice string
		status Status
	}{
		{"length", `{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"cut"}}`, StatusTruncated},
		{"filter", `{"index":0,"finish_reason":"content_filter","message":{"role":"assistant","content":""}}`, StatusBlocked},
		{"refusal", `{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"","refusal":"no"}}`, StatusBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newChatServer(t, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[`+tt.choice+`]}`)
			g := newTestGenerator(t, srv.URL)
			mcb := &ModelContextBuilder{}
			mcb.UserText("", "hi")
			_, err := g.Complete(context.Background(), mcb.Build())
			var st *State
			if !errors.As(err, &st) {
				t.Fatalf("err = %v, want *State", err)
			}
			if st.Status() != tt.status {
				t.Errorf("Status() = %v, want %v", st.Status(), tt.status)
			}
		})
	}
}

func TestOpenAIGenerator_ConvMergesToolCalls(t *testing.T) {
	g := &OpenAIGenerator{Model: "m"}
	mcb := &ModelContextBuilder{}
	mcb.UserText("", "q")
	mcb.ToolCall("", &ToolCall{ID: "a", FuncCall: &FuncCall{Name: "t", Arguments: "{}"}})
	mcb.ToolCall("", &ToolCall{ID: "b", FuncCall: &FuncCall{Name: "t", Arguments: "{}"}})
	mcb.ToolResult("", "a", "1")
	mcb.ToolResult("", "b", "2")
	mcb.ModelText("", "")
	mcb.UserText("", "next")

	msgs, err := g.convModelContext(mcb.Build())
	if err != nil {
		t.Fatalf("convModelContext error: %v", err)
	}
	// user, assistant(a,b), tool a, tool b, user; the empty model text is dropped.
	if len(msgs) != 5 {
		t.Fatalf("message count = %d, want 5", len(msgs))
	}
	if msgs[1].OfAssistant == nil || len(msgs[1].OfAssistant.ToolCalls) != 2 {
		t.Errorf("assistant message = %+v", msgs[1].OfAssistant)
	}
	if msgs[2].OfTool == nil || msgs[3].OfTool == nil {
		t.Errorf("expected tool messages at 2 and 3")
	}
}
