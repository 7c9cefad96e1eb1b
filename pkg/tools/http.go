package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/itchyny/gojq"

	"github.com/haivivi/playground/pkg/genx"
)

const defaultMaxResponseBytes = 1 << 20

type httpRequestArgs struct {
	Method  string            `json:"method,omitempty" jsonschema:"HTTP method, defaults to GET"`
	URL     string            `json:"url" jsonschema:"absolute http or https URL"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"request headers"`
	Body    string            `json:"body,omitempty" jsonschema:"request body"`
	JQ      string            `json:"jq,omitempty" jsonschema:"optional jq expression applied to a JSON response, e.g. .items[0].name"`
}

type httpResponse struct {
	Status    int    `json:"status"`
	Body      any    `json:"body"`
	Truncated bool   `json:"truncated,omitempty"`
	Type      string `json:"content_type,omitempty"`
}

func newHTTPRequest(opts *Options) *genx.FuncTool {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := opts.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseBytes
	}
	return genx.MustNewFuncTool[httpRequestArgs](
		HTTPRequestName,
		"Make an HTTP request and return status and body. JSON bodies are decoded; use jq to extract part of a JSON response.",
		genx.InvokeFunc[httpRequestArgs](func(ctx context.Context, _ *genx.FuncCall, arg httpRequestArgs) (any, error) {
			return doHTTP(ctx, client, limit, arg)
		}),
	)
}

func doHTTP(ctx context.Context, client *http.Client, limit int64, arg httpRequestArgs) (*httpResponse, error) {
	if !strings.HasPrefix(arg.URL, "http://") && !strings.HasPrefix(arg.URL, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}
	var query *gojq.Query
	if arg.JQ != "" {
		q, err := gojq.Parse(arg.JQ)
		if err != nil {
			return nil, fmt.Errorf("parse jq: %w", err)
		}
		query = q
	}
	method := strings.ToUpper(arg.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if arg.Body != "" {
		body = strings.NewReader(arg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, arg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range arg.Headers {
		req.Header.Set(k, v)
	}
	if arg.Body != "" && req.Header.Get("Content-Type") == "" && json.Valid([]byte(arg.Body)) {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// Read one byte past the limit to detect overflow.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	out := &httpResponse{Status: resp.StatusCode, Type: resp.Header.Get("Content-Type")}
	if int64(len(raw)) > limit {
		raw = raw[:limit]
		out.Truncated = true
	}

	var decoded any
	if !out.Truncated && json.Unmarshal(raw, &decoded) == nil {
		out.Body = decoded
	} else {
		out.Body = string(raw)
	}

	if query != nil {
		if _, isText := out.Body.(string); isText {
			return nil, errors.New("jq needs a complete JSON response")
		}
		v, err := runJQ(query, out.Body)
		if err != nil {
			return nil, err
		}
		out.Body = v
	}
	return out, nil
}

// runJQ returns the first result of query, or all results as a list when
// there is more than one.
func runJQ(query *gojq.Query, input any) (any, error) {
	iter := query.Run(input)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("jq error: %w", err)
		}
		results = append(results, v)
	}
	switch len(results) {
	case 0:
		return nil, errors.New("jq expression returned no result")
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
