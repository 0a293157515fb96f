package domain

import "context"

// ConfigTree is the hierarchical key-value store the parameter set reads
// from and writes to. Paths are dot-separated segments; a segment may carry
// a zero-based occurrence index, e.g. "pscans.autoTagScanners.scanner(2).name".
// A segment without an index addresses occurrence 0.
type ConfigTree interface {
	// ReadString returns the string value at path, or def when absent
	ReadString(path string, def string) string
	// ReadBool returns the boolean value at path, or def when absent or unparseable
	ReadBool(path string, def bool) bool
	// Write sets the value at path, creating intermediate nodes as needed
	Write(path string, value any) error
	// ClearSubtree removes every occurrence of the final path segment
	ClearSubtree(path string)
	// ListChildNodes returns the sub-trees rooted at each occurrence of the
	// final path segment, in occurrence order. It fails when the path
	// traverses a scalar leaf (a structurally malformed tree).
	ListChildNodes(basePath string) ([]ConfigTree, error)
}

// TreePersister flushes a config tree to durable storage. Persistence is a
// store concern, deliberately kept off the ConfigTree read/write contract.
type TreePersister interface {
	Save() error
}

// RuleParams owns the in-memory rule list and the two policy flags, and
// mediates between that state and the config tree.
type RuleParams interface {
	// Load populates the rule list and flags from the store
	Load()
	// Rules returns the current ordered rule list
	Rules() []RuleRecord
	// SetRules replaces the list wholesale and rewrites the store subtree
	SetRules(rules []RuleRecord) error
	ConfirmRemoveRule() bool
	SetConfirmRemoveRule(confirm bool) error
	ScanOnlyInScope() bool
	SetScanOnlyInScope(onlyInScope bool) error

	// Stats returns parameter-set statistics for monitoring
	Stats() map[string]any
}

// TagEngine evaluates auto-tag rules against HTTP message transcripts.
type TagEngine interface {
	// SetRules replaces the engine's rule set, compiling regexes up front
	SetRules(ctx context.Context, rules []RuleRecord) error
	// Scan returns the matches for the message, in rule-list order
	Scan(ctx context.Context, msg *HTTPMessage) (*ScanResult, error)

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
	GetStats(ctx context.Context) map[string]any
}

// CacheManager defines the contract for scan-result caching
type CacheManager interface {
	Get(key string) (*ScanResult, bool)
	Set(key string, result *ScanResult)
	Invalidate(key string)
	Clear()
	Stats() CacheStats

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
}

// HealthChecker defines the interface for system health monitoring
type HealthChecker interface {
	CheckHealth(ctx context.Context) SystemHealth
	CheckComponent(ctx context.Context, component string) HealthStatus
}

// Validator defines the interface for input validation
type Validator interface {
	ValidateRule(rule *RuleRecord) error
	// ValidateRules validates each record and rejects duplicate names;
	// wholesale replacement callers are responsible for list uniqueness
	ValidateRules(rules []RuleRecord) error
	ValidateMessage(msg *HTTPMessage) error
}
