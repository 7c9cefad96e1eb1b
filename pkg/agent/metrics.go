package agent

import (
	"sort"
	"time"

	"github.com/haivivi/playground/pkg/genx"
)

// ToolStats aggregates the calls of one tool within a turn.
type ToolStats struct {
	Calls    int
	Errors   int
	Duration time.Duration
}

// Metrics describes one turn.
type Metrics struct {
	Cycles  int
	Latency time.Duration
	Usage   genx.Usage
	Tools   map[string]*ToolStats
}

func newMetrics() *Metrics {
	return &Metrics{Tools: make(map[string]*ToolStats)}
}

func (m *Metrics) recordTool(name string, d time.Duration, failed bool) {
	st, ok := m.Tools[name]
	if !ok {
		st = &ToolStats{}
		m.Tools[name] = st
	}
	st.Calls++
	st.Duration += d
	if failed {
		st.Errors++
	}
}

// ToolNames returns the names of tools called this turn, sorted.
func (m *Metrics) ToolNames() []string {
	names := make([]string, 0, len(m.Tools))
	for n := range m.Tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Summary is the JSON view of Metrics returned to clients.
type Summary struct {
	TotalCycles        int                    `json:"total_cycles"`
	TotalDuration      float64                `json:"total_duration"`
	AverageCycleTime   float64                `json:"average_cycle_time"`
	ToolUsage          map[string]ToolSummary `json:"tool_usage"`
	AccumulatedUsage   UsageSummary           `json:"accumulated_usage"`
	AccumulatedMetrics LatencySummary         `json:"accumulated_metrics"`
}

type ToolSummary struct {
	CallCount    int     `json:"call_count"`
	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	TotalTime    float64 `json:"total_time"`
	AverageTime  float64 `json:"average_time"`
	SuccessRate  float64 `json:"success_rate"`
}

type UsageSummary struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

type LatencySummary struct {
	LatencyMs int64 `json:"latencyMs"`
}

// Summary converts m for the response body. Durations are in seconds.
func (m *Metrics) Summary() Summary {
	s := Summary{
		TotalCycles:   m.Cycles,
		TotalDuration: m.Latency.Seconds(),
		ToolUsage:     make(map[string]ToolSummary, len(m.Tools)),
		AccumulatedUsage: UsageSummary{
			InputTokens:  m.Usage.PromptTokenCount,
			OutputTokens: m.Usage.GeneratedTokenCount,
			TotalTokens:  m.Usage.Total(),
		},
		AccumulatedMetrics: LatencySummary{LatencyMs: m.Latency.Milliseconds()},
	}
	if m.Cycles > 0 {
		s.AverageCycleTime = m.Latency.Seconds() / float64(m.Cycles)
	}
	for name, st := range m.Tools {
		ts := ToolSummary{
			CallCount:    st.Calls,
			SuccessCount: st.Calls - st.Errors,
			ErrorCount:   st.Errors,
			TotalTime:    st.Duration.Seconds(),
		}
		if st.Calls > 0 {
			ts.AverageTime = ts.TotalTime / float64(st.Calls)
			ts.SuccessRate = float64(ts.SuccessCount) / float64(st.Calls)
		}
		s.ToolUsage[name] = ts
	}
	return s
}
