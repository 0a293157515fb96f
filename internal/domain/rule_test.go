package domain

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Kind
		wantErr  bool
	}{
		{"tag", "TAG", KindTag, false},
		{"note", "NOTE", KindNote, false},
		{"lowercase rejected", "tag", "", true},
		{"mixed case rejected", "Tag", "", true},
		{"empty rejected", "", "", true},
		{"unknown rejected", "ALERT", "", true},
		{"whitespace rejected", " TAG", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := ParseKind(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				appErr, ok := err.(*AppError)
				require.True(t, ok)
				assert.Equal(t, ErrKindInvalid, appErr.Code)
				assert.Equal(t, 422, appErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestKind_StringRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindTag, KindNote} {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}
}

func TestValidateRule_Valid(t *testing.T) {
	v := NewInputValidator()

	rule := &RuleRecord{
		Name:            "json_extension",
		Kind:            KindTag,
		Config:          "JSON",
		RequestURLRegex: `\.json\b`,
		Enabled:         true,
	}

	assert.NoError(t, v.ValidateRule(rule))
}

func TestValidateRule_AllRegexesEmpty(t *testing.T) {
	v := NewInputValidator()

	// Empty regexes are structurally valid; such a rule just never matches
	rule := &RuleRecord{Name: "inert", Kind: KindNote, Enabled: true}
	assert.NoError(t, v.ValidateRule(rule))
}

func TestValidateRule_Invalid(t *testing.T) {
	v := NewInputValidator()

	tests := []struct {
		name string
		rule *RuleRecord
		code string
	}{
		{"nil rule", nil, ErrValidationFailed},
		{"empty name", &RuleRecord{Kind: KindTag}, ErrValidationFailed},
		{"name too long", &RuleRecord{Name: strings.Repeat("a", 257), Kind: KindTag}, ErrValidationFailed},
		{"bad kind", &RuleRecord{Name: "x", Kind: Kind("ALERT")}, ErrKindInvalid},
		{"oversized config", &RuleRecord{Name: "x", Kind: KindTag, Config: strings.Repeat("c", 102401)}, ErrValidationFailed},
		{"bad url regex", &RuleRecord{Name: "x", Kind: KindTag, RequestURLRegex: "("}, ErrRegexInvalid},
		{"bad header regex", &RuleRecord{Name: "x", Kind: KindTag, RequestHeaderRegex: "[z"}, ErrRegexInvalid},
		{"bad response header regex", &RuleRecord{Name: "x", Kind: KindTag, ResponseHeaderRegex: "(?P<"}, ErrRegexInvalid},
		{"bad body regex", &RuleRecord{Name: "x", Kind: KindTag, ResponseBodyRegex: "*"}, ErrRegexInvalid},
		{"regex too long", &RuleRecord{Name: "x", Kind: KindTag, RequestURLRegex: strings.Repeat("a", 2049)}, ErrRegexInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRule(tt.rule)
			require.Error(t, err)
			appErr, ok := err.(*AppError)
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestValidateRules_DuplicateName(t *testing.T) {
	v := NewInputValidator()

	rules := []RuleRecord{
		{Name: "dup", Kind: KindTag, Enabled: true},
		{Name: "other", Kind: KindNote, Enabled: true},
		{Name: "dup", Kind: KindNote, Enabled: false},
	}

	err := v.ValidateRules(rules)
	require.Error(t, err)

	appErr, ok := err.(*AppError)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateName, appErr.Code)
	assert.Equal(t, 409, appErr.StatusCode)

	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dup", details["name"])
	assert.Equal(t, 0, details["first_index"])
	assert.Equal(t, 2, details["conflict_index"])
}

func TestValidateRules_ReportsFailingIndex(t *testing.T) {
	v := NewInputValidator()

	rules := []RuleRecord{
		{Name: "ok", Kind: KindTag},
		{Name: "broken", Kind: KindTag, RequestURLRegex: "("},
	}

	err := v.ValidateRules(rules)
	require.Error(t, err)

	appErr, ok := err.(*AppError)
	require.True(t, ok)
	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, details["index"])
}

func TestValidateMessage(t *testing.T) {
	v := NewInputValidator()

	t.Run("valid", func(t *testing.T) {
		msg := &HTTPMessage{
			Method:          "GET",
			URL:             "https://example.com/data.json",
			ResponseHeaders: "Content-Type: application/json",
		}
		assert.NoError(t, v.ValidateMessage(msg))
	})

	t.Run("nil message", func(t *testing.T) {
		assert.Error(t, v.ValidateMessage(nil))
	})

	t.Run("missing url", func(t *testing.T) {
		assert.Error(t, v.ValidateMessage(&HTTPMessage{Method: "GET"}))
	})

	t.Run("oversized part", func(t *testing.T) {
		msg := &HTTPMessage{
			URL:          "https://example.com",
			ResponseBody: strings.Repeat("b", (10<<20)+1),
		}
		assert.Error(t, v.ValidateMessage(msg))
	})
}

func TestProperty_KindParsingIsClosed(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("only exact enum members parse, everything else is rejected", prop.ForAll(
		func(text string) bool {
			kind, err := ParseKind(text)
			if text == "TAG" || text == "NOTE" {
				return err == nil && kind.String() == text
			}
			return err != nil
		},
		gen.OneGenOf(
			gen.OneConstOf("TAG", "NOTE", "tag", "note", "ALERT", ""),
			gen.AlphaString(),
		),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ValidRulesAlwaysPassValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rules with a bounded name, a valid kind and literal patterns validate", prop.ForAll(
		func(name string, kindText string, config string, pattern string) bool {
			rule := &RuleRecord{
				Name:            name,
				Kind:            Kind(kindText),
				Config:          config,
				RequestURLRegex: pattern,
				Enabled:         true,
			}
			return NewInputValidator().ValidateRule(rule) == nil
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 && len(s) <= 256 }),
		gen.OneConstOf("TAG", "NOTE"),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) <= 102400 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) <= 2048 }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
