package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// storedMessage is a history entry as read from a backend. Content is
// either a string or a list of Converse-style content blocks:
//
//	{"text": "..."}
//	{"toolUse": {"toolUseId": "...", "name": "...", "input": {...}}}
//	{"toolResult": {"toolUseId": "...", "content": [{"text": "..."}]}}
//
// Block lists are flattened into Message values on load. Other block kinds
// (images, reasoning) are skipped.
type storedMessage struct {
	Role       string     `json:"role" dynamodbav:"role"`
	Content    any        `json:"content,omitempty" dynamodbav:"content,omitempty"`
	Name       string     `json:"name,omitempty" dynamodbav:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" dynamodbav:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" dynamodbav:"tool_call_id,omitempty"`
}

// UnmarshalJSON decodes a history whose entries carry either string
// content or content-block lists.
func (h *History) UnmarshalJSON(b []byte) error {
	var stored []storedMessage
	if err := json.Unmarshal(b, &stored); err != nil {
		return err
	}
	return h.fromStored(stored)
}

// UnmarshalDynamoDBAttributeValue is the DynamoDB counterpart of
// UnmarshalJSON.
func (h *History) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var stored []storedMessage
	if err := attributevalue.Unmarshal(av, &stored); err != nil {
		return err
	}
	return h.fromStored(stored)
}

func (h *History) fromStored(stored []storedMessage) error {
	out := make(History, 0, len(stored))
	for i, sm := range stored {
		msgs, err := sm.flatten()
		if err != nil {
			return fmt.Errorf("session: message %d: %w", i, err)
		}
		out = append(out, msgs...)
	}
	*h = out
	return nil
}

func (sm storedMessage) message(content string) Message {
	return Message{
		Role:       sm.Role,
		Content:    content,
		Name:       sm.Name,
		ToolCalls:  sm.ToolCalls,
		ToolCallID: sm.ToolCallID,
	}
}

func (sm storedMessage) flatten() ([]Message, error) {
	switch c := sm.Content.(type) {
	case nil:
		return []Message{sm.message("")}, nil
	case string:
		return []Message{sm.message(c)}, nil
	case []any:
		return sm.flattenBlocks(c)
	default:
		return nil, fmt.Errorf("unsupported content %T", c)
	}
}

// flattenBlocks turns one block-list entry into at most one text/tool-call
// message followed by one tool message per toolResult block.
func (sm storedMessage) flattenBlocks(blocks []any) ([]Message, error) {
	var (
		text    strings.Builder
		calls   []ToolCall
		results []Message
	)
	for _, raw := range blocks {
		b, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("content block is %T", raw)
		}
		switch {
		case b["text"] != nil:
			text.WriteString(stringOf(b["text"]))
		case b["toolUse"] != nil:
			use, _ := b["toolUse"].(map[string]any)
			tc := ToolCall{ID: stringOf(use["toolUseId"]), Name: stringOf(use["name"])}
			if in := use["input"]; in != nil {
				args, err := json.Marshal(in)
				if err != nil {
					return nil, fmt.Errorf("tool input: %w", err)
				}
				tc.Arguments = string(args)
			}
			calls = append(calls, tc)
		case b["toolResult"] != nil:
			res, _ := b["toolResult"].(map[string]any)
			content, err := resultText(res["content"])
			if err != nil {
				return nil, err
			}
			results = append(results, Message{
				Role:       RoleTool,
				ToolCallID: stringOf(res["toolUseId"]),
				Content:    content,
			})
		}
	}

	var out []Message
	if text.Len() > 0 || len(calls) > 0 || len(results) == 0 {
		m := sm.message(text.String())
		if len(calls) > 0 {
			m.Role = RoleAssistant
			m.ToolCalls = append(m.ToolCalls, calls...)
		}
		out = append(out, m)
	}
	return append(out, results...), nil
}

// resultText joins the text and json blocks of a toolResult.
func resultText(v any) (string, error) {
	blocks, _ := v.([]any)
	var sb strings.Builder
	for _, raw := range blocks {
		b, _ := raw.(map[string]any)
		switch {
		case b["text"] != nil:
			sb.WriteString(stringOf(b["text"]))
		case b["json"] != nil:
			j, err := json.Marshal(b["json"])
			if err != nil {
				return "", fmt.Errorf("tool result: %w", err)
			}
			sb.Write(j)
		}
	}
	return sb.String(), nil
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
