package models

import "time"

// Category is the risk tier assigned to a date validation outcome.
type Category string

const (
	CategoryNone         Category = "NONE"
	CategoryAutoCorrect  Category = "AUTO_CORRECT"
	CategoryFlagReview   Category = "FLAG_REVIEW"
	CategoryFlagCritical Category = "FLAG_CRITICAL"
)

// Rank orders categories by precedence; higher wins.
func (c Category) Rank() int {
	switch c {
	case CategoryFlagCritical:
		return 3
	case CategoryFlagReview:
		return 2
	case CategoryAutoCorrect:
		return 1
	}
	return 0
}

// Max returns the category with the higher precedence.
func (c Category) Max(other Category) Category {
	if other.Rank() > c.Rank() {
		return other
	}
	if c == "" {
		return CategoryNone
	}
	return c
}

// NeedsAttention reports whether the category asks for review or correction.
func (c Category) NeedsAttention() bool {
	return c == CategoryFlagReview || c == CategoryFlagCritical
}

// Confidence is a coarse confidence tier.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// IssueTag names one problem detected in a date string.
type IssueTag string

const (
	IssueNullDate          IssueTag = "NULL_DATE"
	IssueOCRErrorPattern   IssueTag = "OCR_ERROR_PATTERN"
	IssueImpossibleTime    IssueTag = "IMPOSSIBLE_TIME"
	IssueImpossibleDay     IssueTag = "IMPOSSIBLE_DAY"
	IssueUnparseable       IssueTag = "UNPARSEABLE"
	IssueDateTooFarFuture  IssueTag = "DATE_TOO_FAR_FUTURE"
	IssueDateTooFarPast    IssueTag = "DATE_TOO_FAR_PAST"
	IssueLearnedEscalation IssueTag = "LEARNED_ESCALATION"
)

// Correction records one repair rule application.
type Correction struct {
	RuleName string `json:"rule_name" yaml:"rule_name"`
	Before   string `json:"before" yaml:"before"`
	After    string `json:"after" yaml:"after"`
}

// DateValidationResult is the immutable outcome of validating one row's date.
type DateValidationResult struct {
	Raw                string       `json:"raw"`
	Repaired           string       `json:"repaired"`
	Parsed             *time.Time   `json:"parsed,omitempty"`
	Category           Category     `json:"category"`
	Confidence         Confidence   `json:"confidence"`
	Issues             []IssueTag   `json:"issues"`
	CorrectionsApplied []Correction `json:"corrections_applied"`
	Strategy           string       `json:"strategy,omitempty"`
}

// HasIssue reports whether the result carries the given issue tag.
func (r DateValidationResult) HasIssue(tag IssueTag) bool {
	for _, i := range r.Issues {
		if i == tag {
			return true
		}
	}
	return false
}

// IssueStrings returns the issue tags as plain strings.
func (r DateValidationResult) IssueStrings() []string {
	out := make([]string, len(r.Issues))
	for i, tag := range r.Issues {
		out[i] = string(tag)
	}
	return out
}

// DateInference is a date completed from neighbouring transactions.
type DateInference struct {
	Date       time.Time  `json:"date"`
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
	Method     string     `json:"method"`
}
