package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Channel is the keyword-derived transaction channel.
type Channel string

const (
	ChannelATM      Channel = "ATM"
	ChannelPOS      Channel = "POS"
	ChannelTransfer Channel = "TRANSFER"
	ChannelAirtime  Channel = "AIRTIME"
	ChannelCharges  Channel = "CHARGES"
	ChannelReversal Channel = "REVERSAL"
	ChannelBills    Channel = "BILLS"
	ChannelOther    Channel = "OTHER"
	ChannelEmpty    Channel = "EMPTY"
)

// Row issue tags attached to TransactionRow.RowIssues.
const (
	RowIssueInvalidDate      = "invalid_date"
	RowIssueInvalidValueDate = "invalid_value_date"
	RowIssueInvalidBalance   = "invalid_balance"
	RowIssueInvalidAmount    = "invalid_amount"
	RowIssueMissingChannel   = "missing_channel"
	RowIssueTwoSidedAmount   = "two_sided_amount"
	RowIssueDateInferred     = "date_inferred"
	RowIssueReviewRejected   = "review_rejected"
)

// ReviewStatus records the outcome of a manual date review.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = ""
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewModified ReviewStatus = "modified"
)

// IssueSet is a set of row issue tags.
type IssueSet map[string]struct{}

// NewIssueSet builds a set from the given tags.
func NewIssueSet(tags ...string) IssueSet {
	s := make(IssueSet, len(tags))
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

// Add inserts a tag. Adding to a nil set is a no-op.
func (s IssueSet) Add(tag string) {
	if s == nil || tag == "" {
		return
	}
	s[tag] = struct{}{}
}

// Has reports whether the tag is present.
func (s IssueSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Sorted returns the tags in lexical order.
func (s IssueSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// String joins the sorted tags with ", ".
func (s IssueSet) String() string {
	return strings.Join(s.Sorted(), ", ")
}

// Clone returns an independent copy.
func (s IssueSet) Clone() IssueSet {
	out := make(IssueSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// TransactionRow is one canonical transaction, the end product of the pipeline.
type TransactionRow struct {
	RawDate              string
	Date                 *time.Time
	ValueDate            *time.Time
	Description          string
	Debit                decimal.Decimal
	Credit               decimal.Decimal
	Balance              decimal.Decimal
	Channel              Channel
	TransactionReference string
	RowIssues            IssueSet
	DateValidation       DateValidationResult
	Inference            *DateInference
	Review               ReviewStatus
	TableID              int
	Page                 int
}

// Amount returns the signed movement: credit minus debit.
func (t TransactionRow) Amount() decimal.Decimal {
	return t.Credit.Sub(t.Debit)
}

// IsSingleSided reports whether exactly one of debit and credit is non-zero.
func (t TransactionRow) IsSingleSided() bool {
	return t.Debit.IsZero() != t.Credit.IsZero()
}

// Clone returns a copy that shares no mutable state with t.
func (t TransactionRow) Clone() TransactionRow {
	out := t
	out.RowIssues = t.RowIssues.Clone()
	if t.Date != nil {
		d := *t.Date
		out.Date = &d
	}
	if t.ValueDate != nil {
		d := *t.ValueDate
		out.ValueDate = &d
	}
	if t.Inference != nil {
		inf := *t.Inference
		out.Inference = &inf
	}
	out.DateValidation.Issues = append([]IssueTag(nil), t.DateValidation.Issues...)
	out.DateValidation.CorrectionsApplied = append([]Correction(nil), t.DateValidation.CorrectionsApplied...)
	return out
}
