package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscankit/autotag/internal/cache"
	"github.com/pscankit/autotag/internal/domain"
)

func newEngine(t *testing.T, rules ...domain.RuleRecord) *Engine {
	t.Helper()
	e := New(cache.NewLRUCache(100))
	require.NoError(t, e.SetRules(context.Background(), rules))
	return e
}

func jsonMessage() *domain.HTTPMessage {
	return &domain.HTTPMessage{
		Method:          "GET",
		URL:             "https://example.com/data.json",
		RequestHeaders:  "Accept: application/json",
		ResponseHeaders: "Content-Type: application/json",
		ResponseBody:    `{"ok": true}`,
	}
}

func TestScan_SingleDimensionMatch(t *testing.T) {
	e := newEngine(t, domain.RuleRecord{
		Name:            "json_extension",
		Kind:            domain.KindTag,
		Config:          "JSON",
		RequestURLRegex: `\.json\b`,
		Enabled:         true,
	})

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "json_extension", result.Matches[0].RuleName)
	assert.Equal(t, domain.KindTag, result.Matches[0].Kind)
	assert.Equal(t, "JSON", result.Matches[0].Value)
	assert.False(t, result.CacheHit)
}

func TestScan_AllDimensionsMustMatch(t *testing.T) {
	// Both regexes set: the URL matches but the response body does not
	e := newEngine(t, domain.RuleRecord{
		Name:              "strict",
		Kind:              domain.KindTag,
		RequestURLRegex:   `\.json\b`,
		ResponseBodyRegex: "no-such-text",
		Enabled:           true,
	})

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestScan_EmptyRegexIsUnconstrained(t *testing.T) {
	e := newEngine(t, domain.RuleRecord{
		Name:              "body_only",
		Kind:              domain.KindNote,
		Config:            "found it",
		ResponseBodyRegex: `"ok"`,
		Enabled:           true,
	})

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "body_only", result.Matches[0].RuleName)
}

func TestScan_AllRegexesEmptyNeverMatches(t *testing.T) {
	e := newEngine(t, domain.RuleRecord{
		Name:    "inert",
		Kind:    domain.KindTag,
		Enabled: true,
	})

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestScan_DisabledRulesSkipped(t *testing.T) {
	e := newEngine(t, domain.RuleRecord{
		Name:            "off",
		Kind:            domain.KindTag,
		RequestURLRegex: `\.json\b`,
		Enabled:         false,
	})

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestScan_MatchesPreserveRuleOrder(t *testing.T) {
	e := newEngine(t,
		domain.RuleRecord{Name: "first", Kind: domain.KindTag, RequestURLRegex: "example", Enabled: true},
		domain.RuleRecord{Name: "second", Kind: domain.KindNote, RequestURLRegex: `\.json`, Enabled: true},
		domain.RuleRecord{Name: "third", Kind: domain.KindTag, ResponseBodyRegex: "ok", Enabled: true},
	)

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	require.Len(t, result.Matches, 3)
	assert.Equal(t, "first", result.Matches[0].RuleName)
	assert.Equal(t, "second", result.Matches[1].RuleName)
	assert.Equal(t, "third", result.Matches[2].RuleName)
}

func TestScan_SecondScanHitsCache(t *testing.T) {
	e := newEngine(t, domain.RuleRecord{
		Name:            "r",
		Kind:            domain.KindTag,
		RequestURLRegex: `\.json`,
		Enabled:         true,
	})

	first, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Matches, second.Matches)
}

func TestScan_NegativeResultsNotCached(t *testing.T) {
	lru := cache.NewLRUCache(100)
	e := New(lru)
	require.NoError(t, e.SetRules(context.Background(), []domain.RuleRecord{
		{Name: "r", Kind: domain.KindTag, RequestURLRegex: "never-matches", Enabled: true},
	}))

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	assert.Empty(t, result.Matches)

	assert.Equal(t, 0, lru.Stats().Size)
}

func TestScan_CancelledContext(t *testing.T) {
	e := newEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Scan(ctx, jsonMessage())
	require.Error(t, err)

	appErr, ok := err.(*domain.AppError)
	require.True(t, ok)
	assert.Equal(t, domain.ErrTimeout, appErr.Code)
}

func TestSetRules_SkipsInvalidRegex(t *testing.T) {
	e := newEngine(t,
		domain.RuleRecord{Name: "good", Kind: domain.KindTag, RequestURLRegex: "example", Enabled: true},
		domain.RuleRecord{Name: "bad", Kind: domain.KindTag, RequestURLRegex: "(", Enabled: true},
	)

	result, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "good", result.Matches[0].RuleName)
}

func TestSetRules_ClearsCache(t *testing.T) {
	lru := cache.NewLRUCache(100)
	e := New(lru)
	require.NoError(t, e.SetRules(context.Background(), []domain.RuleRecord{
		{Name: "r", Kind: domain.KindTag, RequestURLRegex: `\.json`, Enabled: true},
	}))

	_, err := e.Scan(context.Background(), jsonMessage())
	require.NoError(t, err)
	require.Equal(t, 1, lru.Stats().Size)

	// Replacing the rule set invalidates prior scan results
	require.NoError(t, e.SetRules(context.Background(), nil))
	assert.Equal(t, 0, lru.Stats().Size)
}

func TestHealthCheck(t *testing.T) {
	t.Run("no rules is degraded", func(t *testing.T) {
		e := newEngine(t)
		status := e.HealthCheck(context.Background())
		assert.Equal(t, domain.HealthStatusDegraded, status.Status)
	})

	t.Run("with rules is healthy", func(t *testing.T) {
		e := newEngine(t, domain.RuleRecord{
			Name: "r", Kind: domain.KindTag, RequestURLRegex: "x", Enabled: true,
		})
		status := e.HealthCheck(context.Background())
		assert.Equal(t, domain.HealthStatusHealthy, status.Status)
	})
}

func TestGetStats(t *testing.T) {
	e := newEngine(t,
		domain.RuleRecord{Name: "a", Kind: domain.KindTag, RequestURLRegex: "x", Enabled: true},
		domain.RuleRecord{Name: "b", Kind: domain.KindNote, RequestURLRegex: "y", Enabled: false},
	)

	stats := e.GetStats(context.Background())
	assert.Equal(t, 2, stats["rule_count"])
	assert.Equal(t, map[string]int{"TAG": 1, "NOTE": 1}, stats["rule_kinds"])
}

func TestProperty_LiteralConfigAlwaysCarriedIntoMatch(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a matching rule reports its own name, kind and config", prop.ForAll(
		func(name string, config string) bool {
			e := New(cache.NewLRUCache(10))
			err := e.SetRules(context.Background(), []domain.RuleRecord{{
				Name:            name,
				Kind:            domain.KindTag,
				Config:          config,
				RequestURLRegex: "example",
				Enabled:         true,
			}})
			if err != nil {
				return false
			}

			result, err := e.Scan(context.Background(), jsonMessage())
			if err != nil || len(result.Matches) != 1 {
				return false
			}
			m := result.Matches[0]
			return m.RuleName == name && m.Kind == domain.KindTag && m.Value == config
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_DistinctMessagesGetDistinctCacheKeys(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("scans of different URLs never share cached matches", prop.ForAll(
		func(n int) bool {
			e := New(cache.NewLRUCache(1000))
			err := e.SetRules(context.Background(), []domain.RuleRecord{{
				Name:            "url_echo",
				Kind:            domain.KindTag,
				RequestURLRegex: "host",
				Enabled:         true,
			}})
			if err != nil {
				return false
			}

			for i := 0; i < n; i++ {
				msg := &domain.HTTPMessage{
					Method: "GET",
					URL:    fmt.Sprintf("https://host/%d", i),
				}
				result, err := e.Scan(context.Background(), msg)
				if err != nil {
					return false
				}
				// First scan of each distinct URL is never a cache hit
				if result.CacheHit {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
