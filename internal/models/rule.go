package models

// RuleCategory groups correction rules by the defect they address.
type RuleCategory string

const (
	RuleCategorySpacing RuleCategory = "spacing"
	RuleCategoryMerge   RuleCategory = "merge"
	RuleCategoryTime    RuleCategory = "time"
	RuleCategoryGarbage RuleCategory = "garbage"
	RuleCategoryOther   RuleCategory = "other"
)

// CorrectionRule is a pattern/replacement pair used to repair OCR-damaged date text.
// A nil Replace marks a detection-only rule.
type CorrectionRule struct {
	Pattern  string       `json:"pattern"`
	Replace  *string      `json:"replace"`
	Category RuleCategory `json:"category"`
	Title    string       `json:"title"`
}

// IsDetectionOnly reports whether the rule only flags matches.
func (r CorrectionRule) IsDetectionOnly() bool {
	return r.Replace == nil
}

// Equal reports structural equality.
func (r CorrectionRule) Equal(other CorrectionRule) bool {
	if r.Pattern != other.Pattern || r.Category != other.Category || r.Title != other.Title {
		return false
	}
	if (r.Replace == nil) != (other.Replace == nil) {
		return false
	}
	return r.Replace == nil || *r.Replace == *other.Replace
}

// StringPtr returns a pointer to s; handy for building rules in code.
func StringPtr(s string) *string {
	return &s
}
