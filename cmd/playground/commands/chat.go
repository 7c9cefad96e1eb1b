package commands

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/playground/pkg/agent"
	"github.com/haivivi/playground/pkg/cli"
	"github.com/haivivi/playground/pkg/session"
)

type chatOutput struct {
	Model   string          `json:"model" yaml:"model"`
	Reply   string          `json:"reply" yaml:"reply"`
	History session.History `json:"history,omitempty" yaml:"history,omitempty"`
	Summary agent.Summary   `json:"summary" yaml:"summary"`
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one prompt through the agent and print the reply",
		Long: `Send one prompt through the agent and print the reply.

Without --user the prompt runs with an empty history and nothing is saved.
With --user the turn loads and saves that user's history like the HTTP
backend does.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runChat,
	}
	f := cmd.Flags()
	f.String("system", "", "system prompt (default: the configured one)")
	f.String("user", "", "run as this user, loading and saving history")
	f.StringSlice("tools", nil, "tools to enable (default: the configured selection)")
	f.StringP("output", "o", "", "print structured output (yaml, json) instead of styled text")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("system") {
		system, _ := cmd.Flags().GetString("system")
		a.registry.SetSystemPrompt(ctx, system)
	}
	if cmd.Flags().Changed("tools") {
		names, _ := cmd.Flags().GetStringSlice("tools")
		if _, err := a.registry.SetSelectedTools(ctx, names); err != nil {
			return err
		}
	}

	prompt := strings.Join(args, " ")
	user, _ := cmd.Flags().GetString("user")
	out := chatOutput{Model: a.registry.Settings().ModelID}
	if user != "" {
		res, err := a.turns.RunTurn(ctx, user, prompt)
		if err != nil {
			return err
		}
		out.Reply = res.Reply.Content
		out.History = res.History
		out.Summary = res.Metrics.Summary()
	} else {
		snap := a.registry.Snapshot()
		runner := &agent.Runner{MaxRounds: cfg.MaxRounds, Logger: log}
		res, err := runner.Run(ctx, snap.Generator, agent.Request{
			SystemPrompt: snap.SystemPrompt,
			Prompt:       prompt,
			Tools:        snap.Selected,
			Params:       snap.Settings.Params(),
		})
		if err != nil {
			return err
		}
		out.Reply = res.Reply
		out.Summary = res.Metrics.Summary()
	}

	p := cli.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if format, _ := cmd.Flags().GetString("output"); format != "" {
		f, err := cli.ParseFormat(format)
		if err != nil {
			return err
		}
		return p.Output(out, f)
	}

	s := out.Summary
	fields := []cli.Field{
		{Label: "model", Value: out.Model},
		{Label: "latency", Value: cli.FormatDuration(msDuration(s.AccumulatedMetrics.LatencyMs))},
		{Label: "tokens", Value: cli.FormatTokens(s.AccumulatedUsage.TotalTokens)},
		{Label: "cycles", Value: fmt.Sprint(s.TotalCycles)},
	}
	for _, name := range slices.Sorted(maps.Keys(s.ToolUsage)) {
		fields = append(fields, cli.Field{Label: name, Value: fmt.Sprintf("%d call(s)", s.ToolUsage[name].CallCount)})
	}
	fmt.Fprint(p.Out, p.Styles.RenderReply("assistant", out.Reply, fields...))
	return nil
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
