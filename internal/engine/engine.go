// Package engine evaluates auto-tag rules against HTTP message transcripts.
package engine

import (
	"context"
	"hash/fnv"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pscankit/autotag/internal/domain"
)

// compiledRule pairs a record with its pre-compiled regexes. A nil regex
// means the dimension is unconstrained.
type compiledRule struct {
	record  domain.RuleRecord
	reqURL  *regexp.Regexp
	reqHead *regexp.Regexp
	resHead *regexp.Regexp
	resBody *regexp.Regexp
}

// Engine implements the TagEngine interface with thread-safe operations
type Engine struct {
	mu    sync.RWMutex
	rules []compiledRule
	cache domain.CacheManager
}

// New creates an Engine with an empty rule set
func New(cache domain.CacheManager) *Engine {
	return &Engine{
		rules: make([]compiledRule, 0),
		cache: cache,
	}
}

// SetRules replaces the engine's rule set, compiling regexes up front.
// A rule whose regex does not compile is skipped with a warning; one bad
// rule never blocks the rest. Any replacement clears the scan cache.
func (e *Engine) SetRules(ctx context.Context, rules []domain.RuleRecord) error {
	compiled := make([]compiledRule, 0, len(rules))
	for i := range rules {
		cr, err := compileRule(rules[i])
		if err != nil {
			log.Warn().Err(err).Str("rule", rules[i].Name).
				Msg("Skipping auto tag rule with invalid regex")
			continue
		}
		compiled = append(compiled, cr)
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()

	e.cache.Clear()
	return nil
}

// compileRule compiles the non-empty regexes of one record
func compileRule(record domain.RuleRecord) (compiledRule, error) {
	cr := compiledRule{record: record}
	var err error
	if record.RequestURLRegex != "" {
		if cr.reqURL, err = regexp.Compile(record.RequestURLRegex); err != nil {
			return compiledRule{}, err
		}
	}
	if record.RequestHeaderRegex != "" {
		if cr.reqHead, err = regexp.Compile(record.RequestHeaderRegex); err != nil {
			return compiledRule{}, err
		}
	}
	if record.ResponseHeaderRegex != "" {
		if cr.resHead, err = regexp.Compile(record.ResponseHeaderRegex); err != nil {
			return compiledRule{}, err
		}
	}
	if record.ResponseBodyRegex != "" {
		if cr.resBody, err = regexp.Compile(record.ResponseBodyRegex); err != nil {
			return compiledRule{}, err
		}
	}
	return cr, nil
}

// Scan evaluates the rule set against the message, in rule-list order.
// A rule matches when every non-empty regex matches its dimension; a rule
// with no regex at all never matches. Disabled rules are skipped.
func (e *Engine) Scan(ctx context.Context, msg *domain.HTTPMessage) (*domain.ScanResult, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewAppErrorWithCause(
			domain.ErrTimeout,
			"Scan cancelled",
			408,
			ctx.Err(),
			map[string]any{"url": msg.URL},
		).WithContext(ctx, "scan")
	default:
	}

	key := messageKey(msg)
	if cached, found := e.cache.Get(key); found {
		return cached, nil
	}

	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	matches := make([]domain.Match, 0)
	for i := range rules {
		rule := &rules[i]
		if !rule.record.Enabled {
			continue
		}
		if rule.matches(msg) {
			matches = append(matches, domain.Match{
				RuleName: rule.record.Name,
				Kind:     rule.record.Kind,
				Value:    rule.record.Config,
			})
		}
	}

	result := &domain.ScanResult{
		Matches:   matches,
		CacheHit:  false,
		Timestamp: time.Now(),
	}
	if len(matches) > 0 {
		// Only cache positive results to avoid cache pollution
		e.cache.Set(key, result)
	}
	return result, nil
}

// matches reports whether every constrained dimension matches
func (cr *compiledRule) matches(msg *domain.HTTPMessage) bool {
	if cr.reqURL == nil && cr.reqHead == nil && cr.resHead == nil && cr.resBody == nil {
		return false
	}
	if cr.reqURL != nil && !cr.reqURL.MatchString(msg.URL) {
		return false
	}
	if cr.reqHead != nil && !cr.reqHead.MatchString(msg.RequestHeaders) {
		return false
	}
	if cr.resHead != nil && !cr.resHead.MatchString(msg.ResponseHeaders) {
		return false
	}
	if cr.resBody != nil && !cr.resBody.MatchString(msg.ResponseBody) {
		return false
	}
	return true
}

// messageKey digests the scanned dimensions of a message into a cache key
func messageKey(msg *domain.HTTPMessage) string {
	h := fnv.New64a()
	for _, part := range []string{msg.Method, msg.URL, msg.RequestHeaders, msg.ResponseHeaders, msg.ResponseBody} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// HealthCheck performs a health check on the engine
func (e *Engine) HealthCheck(ctx context.Context) domain.HealthStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := time.Now()
	status := domain.HealthStatusHealthy
	message := "Engine is operating normally"

	ruleCount := len(e.rules)
	enabledCount := 0
	for i := range e.rules {
		if e.rules[i].record.Enabled {
			enabledCount++
		}
	}

	details := map[string]any{
		"rule_count":    ruleCount,
		"enabled_rules": enabledCount,
	}

	if ruleCount == 0 {
		status = domain.HealthStatusDegraded
		message = "No rules loaded"
		details["warning"] = "Engine has no rules to match against"
	}

	cacheHealth := e.cache.HealthCheck(ctx)
	if cacheHealth.Status != domain.HealthStatusHealthy {
		if status == domain.HealthStatusHealthy {
			status = domain.HealthStatusDegraded
		}
		message = "Cache issues detected"
		details["cache_status"] = cacheHealth.Status
		details["cache_message"] = cacheHealth.Message
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}

// GetStats returns engine statistics
func (e *Engine) GetStats(ctx context.Context) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cacheStats := e.cache.Stats()

	kindCount := make(map[string]int)
	for i := range e.rules {
		kindCount[e.rules[i].record.Kind.String()]++
	}

	return map[string]any{
		"rule_count":      len(e.rules),
		"rule_kinds":      kindCount,
		"cache_hits":      cacheStats.Hits,
		"cache_misses":    cacheStats.Misses,
		"cache_size":      cacheStats.Size,
		"cache_max_size":  cacheStats.MaxSize,
		"cache_hit_ratio": cacheStats.HitRatio,
	}
}
