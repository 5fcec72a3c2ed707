package synthesis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// fakeModel returns canned chat responses.
type fakeModel struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func TestParseThemes(t *testing.T) {
	tests := []struct {
		name     string
		response string
		max      int
		want     []string
	}{
		{
			name:     "plain lines",
			response: "betrayal\nredemption\nfound family",
			max:      5,
			want:     []string{"betrayal", "redemption", "found family"},
		},
		{
			name:     "bulleted",
			response: "- betrayal\n* redemption\n• found family",
			max:      5,
			want:     []string{"betrayal", "redemption", "found family"},
		},
		{
			name:     "numbered",
			response: "1. betrayal\n2) redemption\n10. found family",
			max:      5,
			want:     []string{"betrayal", "redemption", "found family"},
		},
		{
			name:     "blank lines and quotes",
			response: "\n\"betrayal\"\n\n redemption \n",
			max:      5,
			want:     []string{"betrayal", "redemption"},
		},
		{
			name:     "capped at max",
			response: "a\nb\nc\nd",
			max:      2,
			want:     []string{"a", "b"},
		},
		{
			name:     "empty response",
			response: "",
			max:      5,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseThemes(tt.response, tt.max))
		})
	}
}

func TestExtractThemes(t *testing.T) {
	model := &fakeModel{response: "- tension between departments\n- missing audio assets"}
	s := newWithModel(model, Config{}, nil)

	themes, err := s.ExtractThemes(context.Background(), []string{"note one", "note two"}, "the audio department", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"tension between departments", "missing audio assets"}, themes)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "the audio department")
	assert.Contains(t, model.prompts[0], "note one")
}

func TestExtractThemes_EmptyInput(t *testing.T) {
	model := &fakeModel{response: "unused"}
	s := newWithModel(model, Config{}, nil)

	themes, err := s.ExtractThemes(context.Background(), nil, "topic", 5)
	require.NoError(t, err)
	assert.Nil(t, themes)
	assert.Empty(t, model.prompts)
}

func TestSummarize(t *testing.T) {
	model := &fakeModel{response: "  The project is on track overall.  "}
	s := newWithModel(model, Config{}, nil)

	summary, err := s.Summarize(context.Background(), []string{"note"}, "the production team")
	require.NoError(t, err)
	assert.Equal(t, "The project is on track overall.", summary)
}

func TestSummarize_ModelError(t *testing.T) {
	model := &fakeModel{err: errors.New("quota exceeded")}
	s := newWithModel(model, Config{}, nil)

	_, err := s.Summarize(context.Background(), []string{"note"}, "focus")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestNoop(t *testing.T) {
	var s Synthesizer = Noop{}

	_, err := s.ExtractThemes(context.Background(), []string{"t"}, "topic", 3)
	assert.ErrorIs(t, err, ErrSynthesisUnavailable)

	_, err = s.Summarize(context.Background(), []string{"t"}, "focus")
	assert.ErrorIs(t, err, ErrSynthesisUnavailable)
}

func TestNewLLMSynthesizer_RequiresAPIKey(t *testing.T) {
	_, err := NewLLMSynthesizer(Config{}, nil)
	assert.Error(t, err)
}
