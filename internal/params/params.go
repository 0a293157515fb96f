// Package params manages the persisted configuration of the passive-scan
// auto-tag rules: the ordered rule list and the two policy flags, backed by
// a hierarchical key-value config tree.
package params

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pscankit/autotag/internal/domain"
)

// Key paths of the persisted-state contract. These must not change: they
// are what existing persisted configuration was written against.
const (
	passiveScansBaseKey = "pscans"

	allAutoTagRulesKey = passiveScansBaseKey + ".autoTagScanners.scanner"

	ruleNameKey    = "name"
	ruleKindKey    = "type"
	ruleConfigKey  = "config"
	ruleReqURLKey  = "reqUrlRegex"
	ruleReqHeadKey = "reqHeadRegex"
	ruleResHeadKey = "resHeadRegex"
	ruleResBodyKey = "resBodyRegex"
	ruleEnabledKey = "enabled"

	confirmRemoveRuleKey = passiveScansBaseKey + ".confirmRemoveAutoTagScanner"
	scanOnlyInScopeKey   = passiveScansBaseKey + ".scanOnlyInScope"
)

// Flag defaults, also part of the persisted-state contract
const (
	defaultConfirmRemoveRule = true
	defaultScanOnlyInScope   = false
	defaultRuleEnabled       = true
)

// ParameterSet owns the in-memory auto-tag rule list plus the two policy
// flags, and mediates between that state and the config tree. It performs
// no locking of its own; concurrent use is the store's and caller's
// responsibility.
type ParameterSet struct {
	tree domain.ConfigTree
	log  zerolog.Logger

	rules             []domain.RuleRecord
	confirmRemoveRule bool
	scanOnlyInScope   bool
}

// New creates an empty parameter set over the given config tree.
// Load populates it.
func New(tree domain.ConfigTree, log zerolog.Logger) *ParameterSet {
	return &ParameterSet{
		tree:              tree,
		log:               log,
		rules:             make([]domain.RuleRecord, 0),
		confirmRemoveRule: defaultConfirmRemoveRule,
		scanOnlyInScope:   defaultScanOnlyInScope,
	}
}

// Load reads the rule subtree and the two flags from the store.
//
// Nodes with an empty name, a name already accepted earlier in the pass, or
// an unparseable kind are skipped; the first two silently, the last with a
// warning. A structural failure enumerating the subtree is logged and
// yields an empty rule list. The flags are read regardless of the subtree
// outcome, so no failure class remains for the caller to handle.
func (p *ParameterSet) Load() {
	nodes, err := p.tree.ListChildNodes(allAutoTagRulesKey)
	if err != nil {
		p.log.Error().Err(err).Str("key", allAutoTagRulesKey).
			Msg("Error while loading the auto tag rules")
		nodes = nil
	}

	rules := make([]domain.RuleRecord, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for i, sub := range nodes {
		name := sub.ReadString(ruleNameKey, "")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}

		kindText := sub.ReadString(ruleKindKey, "")
		kind, err := domain.ParseKind(kindText)
		if err != nil {
			// a bad kind skips this node only, never the whole load
			p.log.Warn().Err(err).Int("index", i).Str("name", name).Str("type", kindText).
				Msg("Skipping auto tag rule with unknown kind")
			continue
		}

		seen[name] = struct{}{}
		rules = append(rules, domain.RuleRecord{
			Name:                name,
			Kind:                kind,
			Config:              sub.ReadString(ruleConfigKey, ""),
			RequestURLRegex:     sub.ReadString(ruleReqURLKey, ""),
			RequestHeaderRegex:  sub.ReadString(ruleReqHeadKey, ""),
			ResponseHeaderRegex: sub.ReadString(ruleResHeadKey, ""),
			ResponseBodyRegex:   sub.ReadString(ruleResBodyKey, ""),
			Enabled:             sub.ReadBool(ruleEnabledKey, defaultRuleEnabled),
		})
	}
	p.rules = rules

	p.confirmRemoveRule = p.tree.ReadBool(confirmRemoveRuleKey, defaultConfirmRemoveRule)
	p.scanOnlyInScope = p.tree.ReadBool(scanOnlyInScopeKey, defaultScanOnlyInScope)
}

// Rules returns a copy of the current ordered rule list. List order is
// rule-evaluation priority downstream.
func (p *ParameterSet) Rules() []domain.RuleRecord {
	out := make([]domain.RuleRecord, len(p.rules))
	copy(out, p.rules)
	return out
}

// SetRules replaces the rule list wholesale and rewrites the store subtree:
// clear, then one node per record at its list index. Callers are
// responsible for supplying unique non-empty names; no uniqueness check is
// performed here.
func (p *ParameterSet) SetRules(rules []domain.RuleRecord) error {
	p.rules = make([]domain.RuleRecord, len(rules))
	copy(p.rules, rules)

	p.tree.ClearSubtree(allAutoTagRulesKey)

	for i := range rules {
		base := fmt.Sprintf("%s(%d).", allAutoTagRulesKey, i)
		rule := &rules[i]

		fields := []struct {
			key   string
			value any
		}{
			{ruleNameKey, rule.Name},
			{ruleKindKey, rule.Kind.String()},
			{ruleConfigKey, rule.Config},
			{ruleReqURLKey, rule.RequestURLRegex},
			{ruleReqHeadKey, rule.RequestHeaderRegex},
			{ruleResHeadKey, rule.ResponseHeaderRegex},
			{ruleResBodyKey, rule.ResponseBodyRegex},
			{ruleEnabledKey, rule.Enabled},
		}
		for _, field := range fields {
			if err := p.tree.Write(base+field.key, field.value); err != nil {
				return domain.NewAppErrorWithCause(
					domain.ErrStoreWrite,
					"Failed to write auto tag rule",
					500,
					err,
					map[string]any{"index": i, "name": rule.Name, "key": field.key},
				)
			}
		}
	}
	return nil
}

// ConfirmRemoveRule reports whether a UI-level confirmation is required
// before a rule is deleted.
func (p *ParameterSet) ConfirmRemoveRule() bool {
	return p.confirmRemoveRule
}

// SetConfirmRemoveRule sets the flag and persists it immediately.
func (p *ParameterSet) SetConfirmRemoveRule(confirm bool) error {
	p.confirmRemoveRule = confirm
	if err := p.tree.Write(confirmRemoveRuleKey, confirm); err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrStoreWrite, "Failed to write confirm-remove flag", 500, err,
			map[string]any{"key": confirmRemoveRuleKey},
		)
	}
	return nil
}

// ScanOnlyInScope reports whether passive scanning is restricted to
// in-scope traffic. Default is false: all messages are scanned.
func (p *ParameterSet) ScanOnlyInScope() bool {
	return p.scanOnlyInScope
}

// SetScanOnlyInScope sets the flag and persists it immediately.
func (p *ParameterSet) SetScanOnlyInScope(onlyInScope bool) error {
	p.scanOnlyInScope = onlyInScope
	if err := p.tree.Write(scanOnlyInScopeKey, onlyInScope); err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrStoreWrite, "Failed to write scan-only-in-scope flag", 500, err,
			map[string]any{"key": scanOnlyInScopeKey},
		)
	}
	return nil
}

// Stats returns parameter-set statistics for monitoring
func (p *ParameterSet) Stats() map[string]any {
	enabled := 0
	kindCount := make(map[string]int)
	for _, rule := range p.rules {
		if rule.Enabled {
			enabled++
		}
		kindCount[rule.Kind.String()]++
	}
	return map[string]any{
		"rule_count":          len(p.rules),
		"enabled_rules":       enabled,
		"rule_kinds":          kindCount,
		"confirm_remove_rule": p.confirmRemoveRule,
		"scan_only_in_scope":  p.scanOnlyInScope,
	}
}
