// Package converter turns DevScript source into Python through a text
// generation model.
package converter

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/apperr"
)

// Generation is one model response.
type Generation struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
	Name() string
}

// Converter builds prompts, calls the generator and cleans the result.
type Converter struct {
	generator Generator
	timeout   time.Duration
	logger    zerolog.Logger
}

// Config holds converter configuration.
type Config struct {
	// Timeout bounds one model call. Zero means no extra bound.
	Timeout time.Duration
}

// Result holds the outcome of one conversion.
type Result struct {
	Code         string
	RawOutput    string
	Model        string
	PromptTokens int
	OutputTokens int
	Duration     time.Duration
}

// New creates a converter around a generator.
func New(gen Generator, cfg Config, logger zerolog.Logger) *Converter {
	return &Converter{
		generator: gen,
		timeout:   cfg.Timeout,
		logger:    logger.With().Str("component", "converter").Logger(),
	}
}

// Convert translates DevScript source into cleaned Python source.
func (c *Converter) Convert(ctx context.Context, source string) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Info().
		Str("generator", c.generator.Name()).
		Int("source_bytes", len(source)).
		Msg("Converting DevScript to Python")

	start := time.Now()
	gen, err := c.generator.Generate(ctx, BuildPrompt(source))
	if err != nil {
		c.logger.Error().Err(err).Msg("Model call failed")
		return nil, apperr.Wrapf(apperr.KindNetworkFailure, "convert", err, "model call failed")
	}

	result := &Result{
		RawOutput:    gen.Text,
		Code:         CleanOutput(gen.Text),
		Model:        gen.Model,
		PromptTokens: gen.PromptTokens,
		OutputTokens: gen.OutputTokens,
		Duration:     time.Since(start),
	}

	if strings.TrimSpace(result.Code) == "" {
		return nil, apperr.New(apperr.KindInvalidResponse, "convert", "model returned no code")
	}

	c.logger.Info().
		Str("model", result.Model).
		Int("prompt_tokens", result.PromptTokens).
		Int("output_tokens", result.OutputTokens).
		Dur("duration", result.Duration).
		Int("code_bytes", len(result.Code)).
		Msg("Conversion complete")

	return result, nil
}

// Explanation holds the outcome of one explain request.
type Explanation struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
}

// Explain asks the model why code failed with errText.
func (c *Converter) Explain(ctx context.Context, code, errText string) (*Explanation, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	gen, err := c.generator.Generate(ctx, BuildExplainPrompt(code, errText))
	if err != nil {
		c.logger.Error().Err(err).Msg("Model call failed")
		return nil, apperr.Wrapf(apperr.KindNetworkFailure, "explain", err, "model call failed")
	}

	text := strings.TrimSpace(gen.Text)
	if text == "" {
		return nil, apperr.New(apperr.KindInvalidResponse, "explain", "model returned no explanation")
	}

	return &Explanation{
		Text:         text,
		Model:        gen.Model,
		PromptTokens: gen.PromptTokens,
		OutputTokens: gen.OutputTokens,
	}, nil
}
