package genx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

var _ Generator = (*OpenAIGenerator)(nil)

const (
	oaiFinishReasonStop          string = "stop"
	oaiFinishReasonToolCalls     string = "tool_calls"
	oaiFinishReasonLength        string = "length"
	oaiFinishReasonFunctionCall  string = "function_call"
	oaiFinishReasonContentFilter string = "content_filter"
)

// OpenAIConfig describes an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// Headers are added to every request, e.g. HTTP-Referer and X-Title
	// for OpenRouter attribution.
	Headers map[string]string

	Params *ModelParams

	// ExtraFields are merged into every request body, e.g. OpenRouter's
	// "provider" routing preferences.
	ExtraFields map[string]any

	HTTPClient *http.Client
	MaxRetries int
}

// OpenAIGenerator implements Generator using the OpenAI chat completions API.
type OpenAIGenerator struct {
	Client *openai.Client `json:"-"`

	Model string `json:"model"`

	Params *ModelParams `json:"params,omitzero"`

	ExtraFields map[string]any `json:"extra_fields,omitzero"`
}

// NewOpenAIGenerator builds a generator for cfg. It fails with
// ErrMissingCredential when cfg.APIKey is empty.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	if cfg.Model == "" {
		return nil, errors.New("genx: model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		if v != "" {
			opts = append(opts, option.WithHeader(k, v))
		}
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAIGenerator{
		Client:      &client,
		Model:       cfg.Model,
		Params:      cfg.Params,
		ExtraFields: cfg.ExtraFields,
	}, nil
}

func (g *OpenAIGenerator) Complete(ctx context.Context, mctx ModelContext) (*Completion, error) {
	params, tools, err := g.chatCompletion(mctx)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("genx: chat completion: %w", err)
	}
	usage := oaiConvUsage(&resp.Usage)
	if len(resp.Choices) == 0 {
		return nil, Error(usage, errors.New("no choices"))
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, Blocked(usage, choice.Message.Refusal)
	}
	switch choice.FinishReason {
	case oaiFinishReasonLength:
		return nil, Truncated(usage)
	case oaiFinishReasonContentFilter:
		return nil, Blocked(usage, "content filter")
	}

	out := &Completion{
		Text:  choice.Message.Content,
		Usage: usage,
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = NewCallID()
		}
		out.ToolCalls = append(out.ToolCalls, &ToolCall{
			ID: id,
			FuncCall: &FuncCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
				tool:      tools[tc.Function.Name],
			},
		})
	}
	return out, nil
}

func (g *OpenAIGenerator) chatCompletion(mctx ModelContext) (openai.ChatCompletionNewParams, map[string]*FuncTool, error) {
	msgs, err := g.convModelContext(mctx)
	if err != nil {
		return openai.ChatCompletionNewParams{}, nil, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.Model,
	}
	mp := mctx.Params()
	if mp == nil {
		mp = g.Params
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			params.MaxTokens = param.NewOpt(int64(mp.MaxTokens))
		}
		params.Temperature = param.NewOpt(float64(mp.Temperature))
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
	}
	tools := make(map[string]*FuncTool)
	for tool := range mctx.Tools() {
		switch tool := tool.(type) {
		case *FuncTool:
			tools[tool.Name] = tool
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: param.NewOpt(tool.Description),
					Parameters:  g.convSchemaForFunc(tool.Argument),
				},
			})
		default:
			return openai.ChatCompletionNewParams{}, nil, fmt.Errorf("unexpected tool type: %T", tool)
		}
	}
	if len(g.ExtraFields) > 0 {
		params.SetExtraFields(g.ExtraFields)
	}
	return params, tools, nil
}

func (g *OpenAIGenerator) convModelContext(mctx ModelContext) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := []openai.ChatCompletionMessageParamUnion{}
	for p := range mctx.Prompts() {
		if p.Text != "" {
			out = append(out, g.convPrompt(p))
		}
	}
	// Consecutive tool calls belong to one assistant turn; the API requires
	// them in a single message ahead of their results.
	var pending *openai.ChatCompletionAssistantMessageParam
	for msg := range mctx.Messages() {
		if call, ok := msg.Payload.(*ToolCall); ok {
			if call.FuncCall == nil {
				return nil, fmt.Errorf("tool call %s has no function", call.ID)
			}
			tc := openai.ChatCompletionMessageToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.FuncCall.Name,
					Arguments: call.FuncCall.Arguments,
				},
			}
			if pending != nil {
				pending.ToolCalls = append(pending.ToolCalls, tc)
				continue
			}
			pending = &openai.ChatCompletionAssistantMessageParam{
				ToolCalls: []openai.ChatCompletionMessageToolCallParam{tc},
			}
			if msg.Name != "" {
				pending.Name = param.NewOpt(msg.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: pending})
			continue
		}
		pending = nil
		mp, ok, err := g.convMessage(msg)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, mp)
		}
	}
	return out, nil
}

func (g *OpenAIGenerator) convPrompt(p *Prompt) openai.ChatCompletionMessageParamUnion {
	mp := openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: param.NewOpt(p.Text),
			},
		},
	}
	if p.Name != "" {
		mp.OfSystem.Name = param.NewOpt(p.Name)
	}
	return mp
}

// convMessage converts a content or tool result message. The boolean is
// false for messages that carry nothing to send (empty model text).
func (g *OpenAIGenerator) convMessage(msg *Message) (openai.ChatCompletionMessageParamUnion, bool, error) {
	switch t := msg.Payload.(type) {
	default:
		return openai.ChatCompletionMessageParamUnion{}, false, fmt.Errorf(
			"unexpected message type: %T, message must be a content, tool call, or tool result",
			t,
		)
	case Contents:
		text := t.String()
		switch msg.Role {
		default:
			return openai.ChatCompletionMessageParamUnion{}, false, fmt.Errorf(
				"unexpected content message role: %s, a content message must be a user or model message",
				msg.Role,
			)
		case RoleUser:
			if text == "" {
				return openai.ChatCompletionMessageParamUnion{}, false, errors.New("user message must contain text")
			}
			mp := openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: param.NewOpt(text),
				},
			}
			if msg.Name != "" {
				mp.Name = param.NewOpt(msg.Name)
			}
			return openai.ChatCompletionMessageParamUnion{OfUser: &mp}, true, nil
		case RoleModel:
			if text == "" {
				return openai.ChatCompletionMessageParamUnion{}, false, nil
			}
			mp := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(text),
				},
			}
			if msg.Name != "" {
				mp.Name = param.NewOpt(msg.Name)
			}
			return openai.ChatCompletionMessageParamUnion{OfAssistant: &mp}, true, nil
		}
	case *ToolResult:
		return openai.ToolMessage(t.Result, t.ID), true, nil
	}
}

func (g *OpenAIGenerator) convSchemaForFunc(s *jsonschema.Schema) openai.FunctionParameters {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func oaiConvUsage(usage *openai.CompletionUsage) Usage {
	return Usage{
		PromptTokenCount:    usage.PromptTokens,
		GeneratedTokenCount: usage.CompletionTokens,
	}
}
