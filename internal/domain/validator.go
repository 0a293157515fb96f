package domain

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	maxNameLength    = 256
	maxConfigSize    = 102400 // 100KB
	maxRegexLength   = 2048
	maxMessagePartSz = 10 << 20 // 10MB per message dimension
)

// InputValidator implements validation for rule records and scan messages
type InputValidator struct {
	maxConfigSize int
}

// NewInputValidator creates a new input validator with default settings
func NewInputValidator() *InputValidator {
	return &InputValidator{
		maxConfigSize: maxConfigSize,
	}
}

// ValidateRule validates a complete rule record
func (v *InputValidator) ValidateRule(rule *RuleRecord) error {
	if rule == nil {
		return NewAppError(ErrValidationFailed, "Rule cannot be nil", 422, nil)
	}

	if rule.Name == "" {
		return NewAppError(ErrValidationFailed, "Rule name is required", 422, map[string]any{"field": "name"})
	}
	if len(rule.Name) > maxNameLength {
		return NewAppError(ErrValidationFailed, fmt.Sprintf("Rule name too long (max %d characters)", maxNameLength), 422, map[string]any{
			"field":      "name",
			"length":     len(rule.Name),
			"max_length": maxNameLength,
		})
	}
	if !utf8.ValidString(rule.Name) {
		return NewAppError(ErrValidationFailed, "Rule name must be valid UTF-8", 422, map[string]any{"field": "name"})
	}

	if _, err := ParseKind(rule.Kind.String()); err != nil {
		return err
	}

	if len(rule.Config) > v.maxConfigSize {
		return NewAppError(ErrValidationFailed, fmt.Sprintf("Config payload too large (max %d bytes)", v.maxConfigSize), 422, map[string]any{
			"field":    "config",
			"size":     len(rule.Config),
			"max_size": v.maxConfigSize,
		})
	}

	for field, pattern := range map[string]string{
		"req_url_regex":  rule.RequestURLRegex,
		"req_head_regex": rule.RequestHeaderRegex,
		"res_head_regex": rule.ResponseHeaderRegex,
		"res_body_regex": rule.ResponseBodyRegex,
	} {
		if err := v.validateRegex(field, pattern); err != nil {
			return err
		}
	}

	return nil
}

// ValidateRules validates every record and enforces name uniqueness across
// the list. The parameter set itself does not re-check uniqueness on write,
// so wholesale replacement goes through here first.
func (v *InputValidator) ValidateRules(rules []RuleRecord) error {
	seen := make(map[string]int, len(rules))
	for i := range rules {
		if err := v.ValidateRule(&rules[i]); err != nil {
			if appErr, ok := err.(*AppError); ok {
				appErr.Details = map[string]any{"index": i, "cause": appErr.Details}
			}
			return err
		}
		if first, dup := seen[rules[i].Name]; dup {
			return NewAppError(ErrDuplicateName, "Duplicate rule name", 409, map[string]any{
				"name":           rules[i].Name,
				"first_index":    first,
				"conflict_index": i,
			})
		}
		seen[rules[i].Name] = i
	}
	return nil
}

// ValidateMessage validates an HTTP message transcript submitted for scanning
func (v *InputValidator) ValidateMessage(msg *HTTPMessage) error {
	if msg == nil {
		return NewAppError(ErrValidationFailed, "Message cannot be nil", 422, nil)
	}
	if msg.URL == "" {
		return NewAppError(ErrValidationFailed, "Message URL is required", 422, map[string]any{"field": "url"})
	}

	for field, part := range map[string]string{
		"request_headers":  msg.RequestHeaders,
		"request_body":     msg.RequestBody,
		"response_headers": msg.ResponseHeaders,
		"response_body":    msg.ResponseBody,
	} {
		if len(part) > maxMessagePartSz {
			return NewAppError(ErrValidationFailed, fmt.Sprintf("Message part too large (max %d bytes)", maxMessagePartSz), 422, map[string]any{
				"field":    field,
				"size":     len(part),
				"max_size": maxMessagePartSz,
			})
		}
		if !utf8.ValidString(part) {
			return NewAppError(ErrValidationFailed, "Message part must be valid UTF-8", 422, map[string]any{"field": field})
		}
	}

	return nil
}

// validateRegex checks that an optional regex field compiles
func (v *InputValidator) validateRegex(field, pattern string) error {
	if pattern == "" {
		return nil // empty means no constraint on this dimension
	}
	if len(pattern) > maxRegexLength {
		return NewAppError(ErrRegexInvalid, fmt.Sprintf("Regex too long (max %d characters)", maxRegexLength), 422, map[string]any{
			"field":      field,
			"length":     len(pattern),
			"max_length": maxRegexLength,
		})
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return NewAppErrorWithCause(ErrRegexInvalid, "Invalid regex pattern", 422, err, map[string]any{
			"field":   field,
			"pattern": pattern,
		})
	}
	return nil
}

// NewValidator creates a new input validator instance
func NewValidator() Validator {
	return NewInputValidator()
}
