package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/haivivi/playground/pkg/agent"
	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/session"
)

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger().Warn("write response", "err", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	log := s.logger().With("method", r.Method, "path", r.URL.Path, "status", status)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	} else {
		log.Info("request rejected", "err", err)
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type conversationsResponse struct {
	Messages session.History `json:"messages"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	h, err := s.Turns.History(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, conversationsResponse{Messages: h})
}

type promptRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"userId"`
}

type agentResponse struct {
	Messages    session.Message `json:"messages"`
	LatencyMs   int64           `json:"latencyMs"`
	TotalTokens int64           `json:"totalTokens"`
	Summary     agent.Summary   `json:"summary"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, r, fmt.Errorf("%w: prompt is required", errBadRequest))
		return
	}
	res, err := s.Turns.RunTurn(r.Context(), req.UserID, req.Prompt)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.observeTurn(turnOutcome(err), nil)
		}
		s.errorResponse(w, r, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.observeTurn("ok", res.Metrics)
	}
	summary := res.Metrics.Summary()
	s.jsonResponse(w, http.StatusOK, agentResponse{
		Messages:    res.Reply,
		LatencyMs:   summary.AccumulatedMetrics.LatencyMs,
		TotalTokens: summary.AccumulatedUsage.TotalTokens,
		Summary:     summary,
	})
}

func turnOutcome(err error) string {
	switch statusOf(err) {
	case http.StatusBadRequest:
		return "rejected"
	case http.StatusBadGateway:
		return "agent_error"
	default:
		return "error"
	}
}

type systemPromptBody struct {
	SystemPrompt string `json:"systemPrompt"`
}

func (s *Server) handleGetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, systemPromptBody{SystemPrompt: s.Registry.SystemPrompt()})
}

func (s *Server) handleSetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	var req systemPromptBody
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	text := s.Registry.SetSystemPrompt(r.Context(), req.SystemPrompt)
	s.observeVersion()
	s.jsonResponse(w, http.StatusOK, systemPromptBody{SystemPrompt: text})
}

// modelSettingsBody uses the frontend's field names; region carries the
// base URL.
type modelSettingsBody struct {
	ModelID     string   `json:"modelId"`
	Region      string   `json:"region"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
}

func settingsBody(ms registry.ModelSettings) modelSettingsBody {
	return modelSettingsBody{
		ModelID:     ms.ModelID,
		Region:      ms.BaseURL,
		MaxTokens:   &ms.MaxTokens,
		Temperature: &ms.Temperature,
		TopP:        &ms.TopP,
	}
}

func (s *Server) handleGetModelSettings(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, settingsBody(s.Registry.Settings()))
}

func (s *Server) handleSetModelSettings(w http.ResponseWriter, r *http.Request) {
	var req modelSettingsBody
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if req.ModelID == "" || req.Region == "" {
		s.errorResponse(w, r, fmt.Errorf("%w: modelId and region are required", errBadRequest))
		return
	}
	ms, err := s.Registry.ReplaceSettings(r.Context(), registry.SettingsUpdate{
		ModelID:     req.ModelID,
		BaseURL:     req.Region,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.observeVersion()
	s.jsonResponse(w, http.StatusOK, settingsBody(ms))
}

type availableToolsResponse struct {
	AvailableTools   []string          `json:"available_tools"`
	SelectedTools    []string          `json:"selected_tools"`
	ToolDescriptions map[string]string `json:"tool_descriptions"`
}

func (s *Server) handleAvailableTools(w http.ResponseWriter, r *http.Request) {
	infos := s.Registry.AvailableTools()
	names := make([]string, len(infos))
	for i, t := range infos {
		names[i] = t.Name
	}
	s.jsonResponse(w, http.StatusOK, availableToolsResponse{
		AvailableTools:   names,
		SelectedTools:    s.Registry.SelectedTools(),
		ToolDescriptions: s.Registry.ToolDescriptions(),
	})
}

type updateToolsRequest struct {
	Tools []string `json:"tools"`
}

type updateToolsResponse struct {
	Success       bool     `json:"success"`
	SelectedTools []string `json:"selected_tools"`
}

func (s *Server) handleUpdateTools(w http.ResponseWriter, r *http.Request) {
	var req updateToolsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	selected, err := s.Registry.SetSelectedTools(r.Context(), req.Tools)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.observeVersion()
	s.jsonResponse(w, http.StatusOK, updateToolsResponse{Success: true, SelectedTools: selected})
}

func (s *Server) observeVersion() {
	if s.Metrics != nil {
		s.Metrics.SettingsVersion.Set(float64(s.Registry.Snapshot().Version))
	}
}
