package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how Output encodes a value.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"

	// FormatRaw writes strings and byte slices as is and falls back to
	// YAML for anything else.
	FormatRaw OutputFormat = "raw"
)

// ParseFormat validates a --output flag value. Empty means YAML.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "":
		return FormatYAML, nil
	case FormatYAML, FormatJSON, FormatRaw:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Output encodes v to w in format.
func Output(w io.Writer, v any, format OutputFormat) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML, "":
		return outputYAML(w, v)
	case FormatRaw:
		switch v := v.(type) {
		case []byte:
			_, err := w.Write(v)
			return err
		case string:
			_, err := io.WriteString(w, v)
			return err
		}
		return outputYAML(w, v)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func outputYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Printer writes results to Out and status lines to Err.
type Printer struct {
	Out    io.Writer
	Err    io.Writer
	Styles Styles
}

// NewPrinter returns a printer using the default theme.
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut, Styles: NewStyles(DefaultTheme)}
}

// Output encodes v to p.Out.
func (p *Printer) Output(v any, format OutputFormat) error {
	return Output(p.Out, v, format)
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Err, p.Styles.Label.Render("✓")+" "+fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Err, p.Styles.Help.Render("ℹ "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, p.Styles.Error.Render("Error:")+" "+fmt.Sprintf(format, args...))
}
