package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/haivivi/playground/pkg/genx"
)

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone such as UTC or Asia/Tokyo; defaults to UTC"`
}

func newCurrentTime(opts *Options) *genx.FuncTool {
	return genx.MustNewFuncTool[currentTimeArgs](
		CurrentTimeName,
		"Get the current date and time in ISO 8601 format for a timezone.",
		genx.InvokeFunc[currentTimeArgs](func(ctx context.Context, _ *genx.FuncCall, arg currentTimeArgs) (any, error) {
			tz := strings.TrimSpace(arg.Timezone)
			if tz == "" {
				tz = "UTC"
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q", tz)
			}
			return opts.now().In(loc).Format(time.RFC3339), nil
		}),
	)
}

type environmentArgs struct {
	Name string `json:"name" jsonschema:"environment variable name"`
}

func newEnvironment(opts *Options) *genx.FuncTool {
	prefixes := opts.EnvPrefixes
	if len(prefixes) == 0 {
		prefixes = []string{"PLAYGROUND_"}
	}
	return genx.MustNewFuncTool[environmentArgs](
		EnvironmentName,
		"Read an environment variable of the server process. Only variables starting with "+strings.Join(prefixes, ", ")+" are visible.",
		genx.InvokeFunc[environmentArgs](func(ctx context.Context, _ *genx.FuncCall, arg environmentArgs) (any, error) {
			allowed := false
			for _, p := range prefixes {
				if strings.HasPrefix(arg.Name, p) {
					allowed = true
					break
				}
			}
			if !allowed {
				return nil, fmt.Errorf("variable %q is not readable", arg.Name)
			}
			v, ok := os.LookupEnv(arg.Name)
			if !ok {
				return fmt.Sprintf("%s is not set", arg.Name), nil
			}
			return v, nil
		}),
	)
}

type thinkArgs struct {
	Thought string `json:"thought" jsonschema:"reasoning to write down before answering"`
}

func newThink() *genx.FuncTool {
	return genx.MustNewFuncTool[thinkArgs](
		ThinkName,
		"Write down intermediate reasoning. The thought is returned unchanged and has no side effects.",
		genx.InvokeFunc[thinkArgs](func(ctx context.Context, _ *genx.FuncCall, arg thinkArgs) (any, error) {
			return arg.Thought, nil
		}),
	)
}

type weatherArgs struct {
	City string `json:"city" jsonschema:"city name"`
	Days int    `json:"days,omitempty" jsonschema:"number of days, 1 to 7; defaults to 3"`
}

type forecastDay struct {
	Date       string `json:"date"`
	Condition  string `json:"condition"`
	HighC      int    `json:"high_c"`
	LowC       int    `json:"low_c"`
	RainChance int    `json:"rain_chance"`
}

var conditions = []string{"sunny", "partly cloudy", "cloudy", "light rain", "showers", "windy", "clear"}

func newWeather(opts *Options) *genx.FuncTool {
	return genx.MustNewFuncTool[weatherArgs](
		WeatherName,
		"Get a sample weather forecast for a city. The data is generated and not real.",
		genx.InvokeFunc[weatherArgs](func(ctx context.Context, _ *genx.FuncCall, arg weatherArgs) (any, error) {
			city := strings.TrimSpace(arg.City)
			if city == "" {
				return nil, fmt.Errorf("city is required")
			}
			days := arg.Days
			if days <= 0 {
				days = 3
			}
			if days > 7 {
				days = 7
			}
			seed := 0
			for _, r := range strings.ToLower(city) {
				seed = seed*31 + int(r)
			}
			if seed < 0 {
				seed = -seed
			}
			start := opts.now().UTC()
			out := make([]forecastDay, 0, days)
			for i := 0; i < days; i++ {
				n := seed + i*7
				high := 12 + n%18
				out = append(out, forecastDay{
					Date:       start.AddDate(0, 0, i).Format(time.DateOnly),
					Condition:  conditions[n%len(conditions)],
					HighC:      high,
					LowC:       high - 4 - n%6,
					RainChance: (n * 13) % 100,
				})
			}
			return map[string]any{"city": city, "forecast": out}, nil
		}),
	)
}
