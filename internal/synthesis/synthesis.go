// Package synthesis provides the optional text-synthesis collaborator:
// theme extraction and cross-group summaries via an LLM. Every caller
// treats it as best-effort; failures degrade to absent themes or an empty
// summary, never to a failed aggregation.
package synthesis

import (
	"context"
	"errors"
)

// ErrSynthesisUnavailable indicates no synthesizer is configured.
var ErrSynthesisUnavailable = errors.New("text synthesis not available")

// Synthesizer produces short natural-language rollups from node content.
type Synthesizer interface {
	// ExtractThemes names up to maxThemes recurring themes across texts,
	// oriented toward the given topic.
	ExtractThemes(ctx context.Context, texts []string, topic string, maxThemes int) ([]string, error)

	// Summarize produces one paragraph spanning the texts, oriented toward
	// the given focus.
	Summarize(ctx context.Context, texts []string, focus string) (string, error)
}

// Noop is the synthesizer used when no LLM is configured. It always reports
// ErrSynthesisUnavailable, which callers degrade on.
type Noop struct{}

// ExtractThemes reports ErrSynthesisUnavailable.
func (Noop) ExtractThemes(context.Context, []string, string, int) ([]string, error) {
	return nil, ErrSynthesisUnavailable
}

// Summarize reports ErrSynthesisUnavailable.
func (Noop) Summarize(context.Context, []string, string) (string, error) {
	return "", ErrSynthesisUnavailable
}

var _ Synthesizer = Noop{}
