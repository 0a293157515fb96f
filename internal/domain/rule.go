package domain

import (
	"fmt"
	"time"
)

// Kind is the closed enumeration of auto-tag rule types. The textual form
// is part of the persisted-state contract and must round-trip exactly.
type Kind string

const (
	// KindTag attaches the rule's config payload as a tag to the message
	KindTag Kind = "TAG"
	// KindNote attaches the rule's config payload as a note to the message
	KindNote Kind = "NOTE"
)

// ParseKind parses the stored textual form of a rule kind.
// It is case-sensitive: anything other than an exact member is rejected.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTag, KindNote:
		return Kind(s), nil
	}
	return "", NewAppError(
		ErrKindInvalid,
		fmt.Sprintf("unknown rule kind %q", s),
		422,
		map[string]any{"field": "type", "value": s, "allowed_values": []Kind{KindTag, KindNote}},
	)
}

// String returns the textual form persisted to the config tree.
func (k Kind) String() string {
	return string(k)
}

// RuleRecord describes one auto-tag rule: a set of regex classifiers that
// inspect HTTP traffic and attach the config payload as a tag or note.
// A record is fully defined at construction and treated as immutable;
// changes happen by replacing the whole record in the rule list.
// @Description Auto-tag rule definition
type RuleRecord struct {
	// Name identifies the rule; unique within a rule list (first occurrence wins)
	Name string `json:"name" yaml:"name" validate:"required,min=1" example:"json_extension"`
	// Kind selects what a match attaches to the message
	Kind Kind `json:"type" yaml:"type" validate:"required,oneof=TAG NOTE" example:"TAG" enums:"TAG,NOTE"`
	// Config is a free-form payload interpreted by the matching engine
	Config string `json:"config" yaml:"config" example:"JSON"`

	// The four regexes are independently optional; an empty string means
	// no constraint on that dimension.
	RequestURLRegex     string `json:"req_url_regex" yaml:"req_url_regex" example:"\\.json\\b"`
	RequestHeaderRegex  string `json:"req_head_regex" yaml:"req_head_regex"`
	ResponseHeaderRegex string `json:"res_head_regex" yaml:"res_head_regex"`
	ResponseBodyRegex   string `json:"res_body_regex" yaml:"res_body_regex"`

	// Enabled defaults to true when absent from the store
	Enabled bool `json:"enabled" yaml:"enabled" example:"true"`
}

// HTTPMessage is the transcript of one request/response pair as seen by the
// passive scanner. Headers are the raw header blocks, one line per header.
type HTTPMessage struct {
	Method          string `json:"method" example:"GET"`
	URL             string `json:"url" validate:"required" example:"https://example.com/data.json"`
	RequestHeaders  string `json:"request_headers"`
	RequestBody     string `json:"request_body"`
	ResponseHeaders string `json:"response_headers"`
	ResponseBody    string `json:"response_body"`
	// InScope reports whether the message is in the session scope; the
	// scan-only-in-scope policy flag is applied against it
	InScope bool `json:"in_scope" example:"true"`
}

// Match is one rule firing against a message.
type Match struct {
	RuleName string `json:"rule_name" example:"json_extension"`
	Kind     Kind   `json:"kind" example:"TAG"`
	// Value is the matched rule's config payload
	Value string `json:"value" example:"JSON"`
}

// ScanResult carries the matches for one scanned message.
type ScanResult struct {
	Matches   []Match   `json:"matches"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Size     int     `json:"size"`
	MaxSize  int     `json:"max_size"`
	HitRatio float64 `json:"hit_ratio"`
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy", "unhealthy", "degraded"
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusDegraded  = "degraded"
)

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthStatus `json:"components"`
	Metrics    map[string]any          `json:"metrics,omitempty"`
	Uptime     time.Duration           `json:"uptime"`
}
