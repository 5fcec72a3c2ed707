package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTimeout     = 30 * time.Second
	defaultRateLimit   = 2 // requests per second
	defaultBurst       = 4
	defaultMaxThemes   = 5
	defaultTemperature = 0.3 // low temperature for consistent, factual outputs
	maxTextsPerCall    = 25
)

// Config holds configuration for the LLM synthesizer.
type Config struct {
	// BaseURL is the OpenAI-compatible API base (OpenAI, OpenRouter, local
	// gateways).
	BaseURL string

	// Model is the chat model name. Default: gpt-4o-mini.
	Model string

	// APIKey authenticates against the API.
	APIKey string

	// Timeout is the per-call deadline. Default: 30s.
	Timeout time.Duration

	// RateLimit is requests per second. Default: 2.
	RateLimit float64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaultRateLimit
	}
}

// LLMSynthesizer extracts themes and writes summaries through an
// OpenAI-compatible chat model. Calls are rate limited and carry their own
// deadline; the model's output is parsed tolerantly since formatting drifts
// across models.
type LLMSynthesizer struct {
	model   llms.Model
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLLMSynthesizer creates a synthesizer for the given configuration.
func NewLLMSynthesizer(config Config, logger *zap.Logger) (*LLMSynthesizer, error) {
	config.ApplyDefaults()
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithToken(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	return &LLMSynthesizer{
		model:   model,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), defaultBurst),
		logger:  logger,
	}, nil
}

// newWithModel exists for tests that inject a fake model.
func newWithModel(model llms.Model, config Config, logger *zap.Logger) *LLMSynthesizer {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMSynthesizer{
		model:   model,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), defaultBurst),
		logger:  logger,
	}
}

// ExtractThemes names recurring themes across the texts.
func (s *LLMSynthesizer) ExtractThemes(ctx context.Context, texts []string, topic string, maxThemes int) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if maxThemes <= 0 {
		maxThemes = defaultMaxThemes
	}

	prompt := fmt.Sprintf(
		"Identify up to %d recurring themes in the following notes, as they relate to %s. "+
			"Answer with one short theme per line, no numbering, no commentary.\n\n%s",
		maxThemes, topic, joinTexts(texts),
	)

	response, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	themes := parseThemes(response, maxThemes)
	s.logger.Debug("themes extracted",
		zap.String("topic", topic),
		zap.Int("theme_count", len(themes)),
	)
	return themes, nil
}

// Summarize produces one paragraph spanning the texts.
func (s *LLMSynthesizer) Summarize(ctx context.Context, texts []string, focus string) (string, error) {
	if len(texts) == 0 {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"Summarize the following notes in one cohesive paragraph for %s. "+
			"Plain prose only, no headers or bullets.\n\n%s",
		focus, joinTexts(texts),
	)

	response, err := s.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// complete runs one rate-limited, deadline-bounded chat completion.
func (s *LLMSynthesizer) complete(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	response, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt,
		llms.WithTemperature(defaultTemperature),
	)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	return response, nil
}

// joinTexts concatenates texts as a bounded bullet list.
func joinTexts(texts []string) string {
	if len(texts) > maxTextsPerCall {
		texts = texts[:maxTextsPerCall]
	}
	var b strings.Builder
	for _, text := range texts {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(text))
		b.WriteString("\n")
	}
	return b.String()
}

// parseThemes extracts theme lines from model output, tolerating bullets,
// numbering, and surrounding chatter.
func parseThemes(response string, maxThemes int) []string {
	var themes []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		// Strip "1." / "2)" style numbering
		if i := strings.IndexAny(line, ".)"); i > 0 && i <= 2 {
			if isDigits(line[:i]) {
				line = strings.TrimSpace(line[i+1:])
			}
		}
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		themes = append(themes, line)
		if len(themes) == maxThemes {
			break
		}
	}
	return themes
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

var _ Synthesizer = (*LLMSynthesizer)(nil)
