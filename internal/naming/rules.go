package naming

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// RuleSeparator splits a persisted rule into its path and name halves.
const RuleSeparator = " > "

const (
	// Characters a clip name may not contain.
	forbiddenNameChars = `<>/\|*?:"%`
	// Characters a match path may not contain. Separators and drive colons are allowed.
	forbiddenPathChars = `<>|*?"%`
)

var (
	ErrRuleParsing      = errors.New("rule must have the form \"PATH > NAME\"")
	ErrRuleFormat       = errors.New("rule path and name must not be empty")
	ErrRuleInvalidChars = errors.New("rule contains invalid characters")
	ErrRulePathExists   = errors.New("rule path already exists")
)

// RuleError ties a rule validation failure to the rule's position.
type RuleError struct {
	Index int
	Rule  string
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("custom name #%d (%q): %v", e.Index+1, e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// CandidateKind tells the fallback how to derive a base name.
type CandidateKind int

const (
	CandidateExecutable CandidateKind = iota
	CandidateScene
)

type compiledRule struct {
	rule domain.CustomNameRule
	norm string
}

// RuleSet is a validated, ordered list of custom name rules.
type RuleSet struct {
	rules []compiledRule
}

// ParseRule parses a single "PATH > NAME" rule. index is only used for error context.
func ParseRule(index int, raw string) (domain.CustomNameRule, error) {
	p, n, ok := strings.Cut(raw, RuleSeparator)
	if !ok {
		return domain.CustomNameRule{}, &RuleError{Index: index, Rule: raw, Err: ErrRuleParsing}
	}
	p, n = strings.TrimSpace(p), strings.TrimSpace(n)
	if p == "" || n == "" {
		return domain.CustomNameRule{}, &RuleError{Index: index, Rule: raw, Err: ErrRuleFormat}
	}
	if strings.ContainsAny(n, forbiddenNameChars) {
		return domain.CustomNameRule{}, &RuleError{
			Index: index, Rule: raw,
			Err: fmt.Errorf("%w: name must not contain any of %s", ErrRuleInvalidChars, forbiddenNameChars),
		}
	}
	if strings.ContainsAny(p, forbiddenPathChars) {
		return domain.CustomNameRule{}, &RuleError{
			Index: index, Rule: raw,
			Err: fmt.Errorf("%w: path must not contain any of %s", ErrRuleInvalidChars, forbiddenPathChars),
		}
	}
	return domain.CustomNameRule{MatchPath: p, DisplayName: n}, nil
}

// ParseRules parses the whole set and fails on the first bad rule.
func ParseRules(raw []string) (*RuleSet, error) {
	rs, errs := ParseRulesLenient(raw)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return rs, nil
}

// ParseRulesLenient keeps every valid rule and reports each bad one by index,
// so a caller can drop exactly the offending entries.
func ParseRulesLenient(raw []string) (*RuleSet, []*RuleError) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(raw))}
	seen := make(map[string]int, len(raw))
	var errs []*RuleError

	for i, s := range raw {
		rule, err := ParseRule(i, s)
		if err != nil {
			var re *RuleError
			if errors.As(err, &re) {
				errs = append(errs, re)
			}
			continue
		}
		norm := NormalizePath(rule.MatchPath)
		if first, dup := seen[norm]; dup {
			errs = append(errs, &RuleError{
				Index: i, Rule: s,
				Err: fmt.Errorf("%w (same as #%d)", ErrRulePathExists, first+1),
			})
			continue
		}
		seen[norm] = i
		rs.rules = append(rs.rules, compiledRule{rule: rule, norm: norm})
	}
	return rs, errs
}

// NewRuleSet builds a set from already-typed rules, applying the same validation.
func NewRuleSet(rules []domain.CustomNameRule) (*RuleSet, error) {
	raw := make([]string, len(rules))
	for i, r := range rules {
		raw[i] = r.String()
	}
	return ParseRules(raw)
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns the rules in their original order.
func (s *RuleSet) Rules() []domain.CustomNameRule {
	if s == nil {
		return nil
	}
	out := make([]domain.CustomNameRule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.rule
	}
	return out
}

// Strings serializes the rules back to their "PATH > NAME" form.
func (s *RuleSet) Strings() []string {
	rules := s.Rules()
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.String()
	}
	return out
}

// Match returns the most specific rule matching candidate.
// A rule matches when the candidate equals its path or lives below it.
func (s *RuleSet) Match(candidate string) (domain.CustomNameRule, bool) {
	if s == nil {
		return domain.CustomNameRule{}, false
	}
	c := NormalizePath(candidate)
	best := -1
	for i, r := range s.rules {
		if c != r.norm && !strings.HasPrefix(c, r.norm+"/") {
			continue
		}
		if best < 0 || len(r.norm) > len(s.rules[best].norm) {
			best = i
		}
	}
	if best < 0 {
		return domain.CustomNameRule{}, false
	}
	return s.rules[best].rule, true
}

// Resolve returns the display name for candidate: the most specific custom
// name, or the candidate's own base name when nothing matches.
func (s *RuleSet) Resolve(candidate string, kind CandidateKind) string {
	if rule, ok := s.Match(candidate); ok {
		return rule.DisplayName
	}
	return FallbackName(candidate, kind)
}

// FallbackName derives a clip name from an unmatched candidate.
func FallbackName(candidate string, kind CandidateKind) string {
	name := candidate
	if kind == CandidateExecutable {
		base := path.Base(strings.ReplaceAll(candidate, `\`, "/"))
		if base == "/" || base == "." {
			base = ""
		}
		name = strings.TrimSuffix(base, path.Ext(base))
	}
	name = SanitizeClipName(name)
	if name == "" {
		return DefaultClipName
	}
	return name
}

// NormalizePath case-folds p, unifies separators and strips trailing ones.
func NormalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimRight(p, "/")
}
