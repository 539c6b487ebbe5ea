// Package rules holds compiled, immutable snapshots of date correction rules.
package rules

import (
	"regexp"
	"strings"

	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
)

// Rule is a correction rule with its pattern compiled.
type Rule struct {
	models.CorrectionRule
	re       *regexp.Regexp
	template string
}

// Name identifies the rule in correction records.
func (r Rule) Name() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Pattern
}

// Matches reports whether the rule's pattern occurs in s.
func (r Rule) Matches(s string) bool {
	return r.re.MatchString(s)
}

// Apply rewrites every match in s. Detection-only rules return s unchanged.
func (r Rule) Apply(s string) string {
	if r.IsDetectionOnly() {
		return s
	}
	return r.re.ReplaceAllString(s, r.template)
}

// RuleSet is an ordered snapshot of compiled rules. It is never modified after
// construction; reloading produces a new RuleSet.
type RuleSet struct {
	rules []Rule
}

// Compile builds a RuleSet, skipping rules whose pattern does not compile.
// The skipped rules are reported as errors.
func Compile(defs []models.CorrectionRule) (RuleSet, []error) {
	var errs []error
	compiled := make([]Rule, 0, len(defs))
	for _, def := range defs {
		rule, err := CompileRule(def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, rule)
	}
	return RuleSet{rules: compiled}, errs
}

// CompileRule validates and compiles a single definition.
func CompileRule(def models.CorrectionRule) (Rule, error) {
	if strings.TrimSpace(def.Pattern) == "" {
		return Rule{}, &parsererror.RuleError{Pattern: def.Pattern, Reason: "empty pattern"}
	}
	re, err := regexp.Compile(def.Pattern)
	if err != nil {
		return Rule{}, &parsererror.RuleError{Pattern: def.Pattern, Reason: "pattern does not compile", Err: err}
	}
	rule := Rule{CorrectionRule: def, re: re}
	if def.Replace != nil {
		rule.template = ConvertTemplate(*def.Replace)
	}
	return rule, nil
}

// Empty returns a RuleSet without rules.
func Empty() RuleSet {
	return RuleSet{}
}

// Len returns the number of compiled rules.
func (s RuleSet) Len() int {
	return len(s.rules)
}

// All returns the compiled rules in stored order.
func (s RuleSet) All() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Replacements returns the rules that rewrite text, in stored order.
func (s RuleSet) Replacements() []Rule {
	var out []Rule
	for _, r := range s.rules {
		if !r.IsDetectionOnly() {
			out = append(out, r)
		}
	}
	return out
}

// Detectors returns the detection-only rules, in stored order.
func (s RuleSet) Detectors() []Rule {
	var out []Rule
	for _, r := range s.rules {
		if r.IsDetectionOnly() {
			out = append(out, r)
		}
	}
	return out
}

// Definitions returns the raw rule definitions in stored order.
func (s RuleSet) Definitions() []models.CorrectionRule {
	out := make([]models.CorrectionRule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.CorrectionRule
	}
	return out
}

var backref = regexp.MustCompile(`\\g<(\d+)>|\\(\d+)`)

// ConvertTemplate rewrites backslash group references (\1, \g<1>) found in stored
// rules into Go's ${1} form. Literal dollars are escaped.
func ConvertTemplate(tmpl string) string {
	tmpl = strings.ReplaceAll(tmpl, "$", "$$")
	return backref.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := backref.FindStringSubmatch(m)
		n := sub[1]
		if n == "" {
			n = sub[2]
		}
		return "${" + n + "}"
	})
}
