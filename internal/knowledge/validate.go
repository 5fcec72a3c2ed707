package knowledge

import (
	"strings"
	"unicode/utf8"
)

// minContentLength is the minimum rune count of trimmed content. Length is
// measured in Unicode code points, not bytes.
const minContentLength = 10

// Validation failure reasons.
const (
	ReasonEmptyContent = "empty_content"
	ReasonTooShort     = "too_short"

	// denylist matches use the prefix + the matched pattern, e.g.
	// "denylist_match:error:".
	reasonDenylistPrefix = "denylist_match:"
)

// DefaultDenylist holds substrings that mark content as a serialization
// artifact rather than real text. Matching is case-insensitive.
var DefaultDenylist = []string{
	"error:",
	"no user message",
	"undefined",
	"null",
	"[object object]",
	"nan",
}

// ValidationResult is the structured outcome of content validation.
type ValidationResult struct {
	OK     bool
	Reason string
}

// Validator checks content quality before a node is persisted. It is pure:
// the same input always yields the same result, and expected-invalid input
// never produces an error or panic.
type Validator struct {
	denylist []string
}

// NewValidator returns a Validator with the given deny-list. Patterns are
// lowercased once at construction; nil falls back to DefaultDenylist.
func NewValidator(denylist []string) *Validator {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	lowered := make([]string, len(denylist))
	for i, p := range denylist {
		lowered[i] = strings.ToLower(p)
	}
	return &Validator{denylist: lowered}
}

// ValidateContent applies the validation rules in order, first failure wins:
// non-blank, minimum length, deny-list.
func (v *Validator) ValidateContent(content string) ValidationResult {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ValidationResult{Reason: ReasonEmptyContent}
	}
	if utf8.RuneCountInString(trimmed) < minContentLength {
		return ValidationResult{Reason: ReasonTooShort}
	}
	lowered := strings.ToLower(content)
	for _, pattern := range v.denylist {
		if strings.Contains(lowered, pattern) {
			return ValidationResult{Reason: reasonDenylistPrefix + pattern}
		}
	}
	return ValidationResult{OK: true}
}

// ValidateContent validates with the default deny-list.
func ValidateContent(content string) ValidationResult {
	return defaultValidator.ValidateContent(content)
}

var defaultValidator = NewValidator(nil)
