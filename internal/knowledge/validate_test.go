package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantOK  bool
		reason  string
	}{
		{"valid content", "A hero's long journey through trials and growth", true, ""},
		{"empty string", "", false, ReasonEmptyContent},
		{"whitespace only", "   \t\n  ", false, ReasonEmptyContent},
		{"too short", "short", false, ReasonTooShort},
		{"exactly nine runes", "ninechars", false, ReasonTooShort},
		{"ten runes passes length", "exactly10!", true, ""},
		{"length ignores surrounding whitespace", "   12345678   ", false, ReasonTooShort},
		{"error prefix", "Error: no user message", false, "denylist_match:error:"},
		{"error prefix lowercase", "error: something went wrong here", false, "denylist_match:error:"},
		{"undefined artifact", "the value is undefined somewhere", false, "denylist_match:undefined"},
		{"null artifact", "metadata was null in the payload", false, "denylist_match:null"},
		{"object object artifact", "got [object Object] from the client", false, "denylist_match:[object object]"},
		{"nan artifact", "quality score came back NaN today", false, "denylist_match:nan"},
		{"deny-list is case-insensitive", "UNDEFINED behaviour in the scene", false, "denylist_match:undefined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateContent(tt.content)
			assert.Equal(t, tt.wantOK, got.OK)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestValidateContent_Deterministic(t *testing.T) {
	inputs := []string{
		"", "short", "A perfectly fine piece of content",
		"Error: no user message", strings.Repeat("x", 500),
	}
	for _, in := range inputs {
		first := ValidateContent(in)
		second := ValidateContent(in)
		assert.Equal(t, first, second, "Validate must be idempotent for %q", in)
	}
}

func TestValidateContent_RuneCounting(t *testing.T) {
	// Nine multi-byte runes: more than 10 bytes but still too short.
	got := ValidateContent("ééééééééé")
	assert.False(t, got.OK)
	assert.Equal(t, ReasonTooShort, got.Reason)

	// Ten multi-byte runes pass.
	got = ValidateContent("éééééééééé")
	assert.True(t, got.OK)
}

func TestNewValidator_CustomDenylist(t *testing.T) {
	v := NewValidator([]string{"FORBIDDEN"})

	got := v.ValidateContent("this text is forbidden content")
	require.False(t, got.OK)
	assert.Equal(t, "denylist_match:forbidden", got.Reason)

	// Default patterns no longer apply.
	got = v.ValidateContent("the value is undefined somewhere")
	assert.True(t, got.OK)
}

func TestRelationship_Validate(t *testing.T) {
	half := 0.5
	over := 1.5

	assert.NoError(t, Relationship{Type: "KNOWS", TargetID: "n1", Strength: &half}.Validate())
	assert.NoError(t, Relationship{Type: "KNOWS", TargetID: "n1"}.Validate())
	assert.ErrorIs(t, Relationship{Type: "KNOWS", TargetID: "n1", Strength: &over}.Validate(), ErrInvalidStrength)
	assert.ErrorIs(t, Relationship{Type: "KNOWS"}.Validate(), ErrEmptyTarget)
	assert.Error(t, Relationship{TargetID: "n1"}.Validate())
}

func TestNodeInput_Validate(t *testing.T) {
	assert.ErrorIs(t, NodeInput{Content: "some content"}.Validate(), ErrEmptyType)
	assert.NoError(t, NodeInput{Type: "scene", Content: "some content"}.Validate())
}
