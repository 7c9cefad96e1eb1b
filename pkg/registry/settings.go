package registry

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/haivivi/playground/pkg/genx"
)

const (
	DefaultModelID     = "deepseek/deepseek-v3.2"
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.3
	DefaultTopP        = 0.9
)

// ErrInvalidSettings is returned for settings that cannot build a client.
var ErrInvalidSettings = errors.New("registry: invalid model settings")

// ModelSettings selects the model and its sampling parameters.
type ModelSettings struct {
	ModelID     string  `msgpack:"model_id" yaml:"model_id"`
	BaseURL     string  `msgpack:"base_url" yaml:"base_url"`
	MaxTokens   int     `msgpack:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `msgpack:"temperature" yaml:"temperature"`
	TopP        float64 `msgpack:"top_p" yaml:"top_p"`
}

// DefaultSettings returns the startup settings. Empty arguments fall back
// to DefaultModelID and DefaultBaseURL.
func DefaultSettings(modelID, baseURL string) ModelSettings {
	if modelID == "" {
		modelID = DefaultModelID
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return ModelSettings{
		ModelID:     modelID,
		BaseURL:     baseURL,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
}

// Validate reports the first problem with s, wrapped in ErrInvalidSettings.
func (s ModelSettings) Validate() error {
	switch {
	case strings.TrimSpace(s.ModelID) == "":
		return fmt.Errorf("%w: model id is empty", ErrInvalidSettings)
	case s.MaxTokens <= 0:
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidSettings, s.MaxTokens)
	case s.Temperature < 0 || s.Temperature > 2:
		return fmt.Errorf("%w: temperature %v out of range [0, 2]", ErrInvalidSettings, s.Temperature)
	case s.TopP <= 0 || s.TopP > 1:
		return fmt.Errorf("%w: top-p %v out of range (0, 1]", ErrInvalidSettings, s.TopP)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base url %q is not an http(s) url", ErrInvalidSettings, s.BaseURL)
	}
	return nil
}

// Params converts s into generation parameters.
func (s ModelSettings) Params() *genx.ModelParams {
	return &genx.ModelParams{
		MaxTokens:   s.MaxTokens,
		Temperature: float32(s.Temperature),
		TopP:        float32(s.TopP),
	}
}

// SettingsUpdate replaces ModelID and BaseURL. Nil optional fields keep
// their current values.
type SettingsUpdate struct {
	ModelID     string
	BaseURL     string
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
}

func (u SettingsUpdate) apply(s ModelSettings) ModelSettings {
	s.ModelID = u.ModelID
	s.BaseURL = u.BaseURL
	if u.MaxTokens != nil {
		s.MaxTokens = *u.MaxTokens
	}
	if u.Temperature != nil {
		s.Temperature = *u.Temperature
	}
	if u.TopP != nil {
		s.TopP = *u.TopP
	}
	return s
}

// GeneratorFactory builds a model client for settings.
type GeneratorFactory func(ModelSettings) (genx.Generator, error)

// Endpoint holds what every model client shares regardless of settings.
type Endpoint struct {
	APIKey string

	// SiteURL and AppName are sent as HTTP-Referer and X-Title, which
	// OpenRouter uses for attribution.
	SiteURL string
	AppName string

	// ExtraBody is merged into every request body, e.g. OpenRouter
	// "provider" routing preferences.
	ExtraBody map[string]any
}

// OpenAIFactory returns a factory building genx.OpenAIGenerator clients.
// Without an API key every build fails with genx.ErrMissingCredential.
func OpenAIFactory(ep Endpoint, client *http.Client) GeneratorFactory {
	return func(s ModelSettings) (genx.Generator, error) {
		return genx.NewOpenAIGenerator(genx.OpenAIConfig{
			APIKey:  ep.APIKey,
			BaseURL: s.BaseURL,
			Model:   s.ModelID,
			Headers: map[string]string{
				"HTTP-Referer": ep.SiteURL,
				"X-Title":      ep.AppName,
			},
			Params:      s.Params(),
			ExtraFields: ep.ExtraBody,
			HTTPClient:  client,
			MaxRetries:  2,
		})
	}
}
