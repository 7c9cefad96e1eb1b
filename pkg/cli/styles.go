package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors of interactive output.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Error   lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff5f5f"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Reply lipgloss.Style
	Help  lipgloss.Style
	Error lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Reply: lipgloss.NewStyle().PaddingLeft(2),
		Help:  lipgloss.NewStyle().Foreground(t.Dim),
		Error: lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// Field is one labeled value of a footer line.
type Field struct {
	Label string
	Value string
}

// RenderReply renders a titled block of text followed by a dim footer of
// fields, e.g. the model, latency and token count of a chat reply.
func (s Styles) RenderReply(title, text string, fields ...Field) string {
	var b strings.Builder
	b.WriteString(s.Title.Render(title))
	b.WriteByte('\n')
	b.WriteString(s.Reply.Render(strings.TrimSpace(text)))
	b.WriteByte('\n')
	if len(fields) > 0 {
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = f.Label + ": " + f.Value
		}
		b.WriteString(s.Help.Render(strings.Join(parts, " · ")))
		b.WriteByte('\n')
	}
	return b.String()
}
