package store

import (
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/rules"
)

// MockRuleSource is a RuleSource backed by in-memory definitions.
type MockRuleSource struct {
	Rules     []models.CorrectionRule
	LoadError error
	Loads     int
}

// Load compiles the in-memory rules, skipping invalid ones.
func (m *MockRuleSource) Load() (rules.RuleSet, error) {
	m.Loads++
	if m.LoadError != nil {
		return rules.Empty(), m.LoadError
	}
	set, _ := rules.Compile(m.Rules)
	return set, nil
}
