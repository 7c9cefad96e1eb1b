// Package cli holds terminal helpers shared by the playground commands:
// structured output (YAML, JSON, raw), duration and token formatting, and
// lipgloss styles for interactive output.
//
//	p := cli.NewPrinter(os.Stdout, os.Stderr)
//	p.Output(cfg, cli.FormatYAML)
//	p.Success("saved %s", name)
package cli
