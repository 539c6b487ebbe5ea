// Package review manages manual review sessions for flagged transaction dates.
package review

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"banklytik/statement-normalizer/internal/dateutils"
	"banklytik/statement-normalizer/internal/fileutils"
	"banklytik/statement-normalizer/internal/models"
)

// Action is a reviewer decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionModify  Action = "modify"
	ActionSkip    Action = "skip"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject, ActionModify, ActionSkip:
		return a, nil
	}
	return "", fmt.Errorf("unknown review action %q", s)
}

// Session statuses reported by Summary.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
)

// ErrUnknownRow is returned for a decision on a row that is not a candidate.
var ErrUnknownRow = errors.New("row is not a review candidate")

// Decision records what the reviewer decided for one candidate.
type Decision struct {
	Action        Action    `yaml:"action" json:"action"`
	CorrectedDate string    `yaml:"corrected_date,omitempty" json:"corrected_date,omitempty"`
	Notes         string    `yaml:"notes,omitempty" json:"notes,omitempty"`
	Timestamp     time.Time `yaml:"timestamp" json:"timestamp"`
}

// Candidate is one flagged row awaiting review.
type Candidate struct {
	RowIndex           int                 `yaml:"row_index" json:"row_index"`
	OriginalDate       string              `yaml:"original_date" json:"original_date"`
	CurrentDate        string              `yaml:"current_date" json:"current_date"`
	Repaired           string              `yaml:"repaired,omitempty" json:"repaired,omitempty"`
	Description        string              `yaml:"description,omitempty" json:"description,omitempty"`
	Amount             string              `yaml:"amount,omitempty" json:"amount,omitempty"`
	Issues             []string            `yaml:"issues" json:"issues"`
	ActionRequired     models.Category     `yaml:"action_required" json:"action_required"`
	Confidence         models.Confidence   `yaml:"confidence" json:"confidence"`
	CorrectionsApplied []models.Correction `yaml:"corrections_applied,omitempty" json:"corrections_applied,omitempty"`
	Decision           *Decision           `yaml:"decision,omitempty" json:"decision,omitempty"`
}

// Session is a set of candidates reviewed together.
type Session struct {
	ID         string      `yaml:"session_id" json:"session_id"`
	Source     string      `yaml:"source,omitempty" json:"source,omitempty"`
	CreatedAt  time.Time   `yaml:"created_at" json:"created_at"`
	Candidates []Candidate `yaml:"candidates" json:"candidates"`
}

// Candidate returns the candidate for a row index.
func (s *Session) Candidate(rowIndex int) (*Candidate, bool) {
	for i := range s.Candidates {
		if s.Candidates[i].RowIndex == rowIndex {
			return &s.Candidates[i], true
		}
	}
	return nil, false
}

// SessionID formats the id of a session created at t.
func SessionID(t time.Time) string {
	return "review_" + t.Format("20060102_150405")
}

// NewSession collects every row whose date category is not NONE.
func NewSession(rows []models.TransactionRow, now time.Time) *Session {
	s := &Session{ID: SessionID(now), CreatedAt: now}
	for i, row := range rows {
		v := row.DateValidation
		if v.Category == "" || v.Category == models.CategoryNone {
			continue
		}
		s.Candidates = append(s.Candidates, Candidate{
			RowIndex:           i,
			OriginalDate:       row.RawDate,
			CurrentDate:        currentDate(row),
			Repaired:           v.Repaired,
			Description:        row.Description,
			Amount:             row.Amount().StringFixed(2),
			Issues:             v.IssueStrings(),
			ActionRequired:     v.Category,
			Confidence:         v.Confidence,
			CorrectionsApplied: append([]models.Correction(nil), v.CorrectionsApplied...),
		})
	}
	return s
}

func currentDate(row models.TransactionRow) string {
	if row.Date != nil {
		return dateutils.ToISODate(*row.Date)
	}
	if row.DateValidation.Repaired != "" {
		return row.DateValidation.Repaired
	}
	return row.RawDate
}

// Decide records a decision on the candidate for rowIndex. A modification
// needs a corrected date.
func (s *Session) Decide(rowIndex int, action Action, correctedDate, notes string, at time.Time) error {
	c, ok := s.Candidate(rowIndex)
	if !ok {
		return fmt.Errorf("row %d: %w", rowIndex, ErrUnknownRow)
	}
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}
	correctedDate = strings.TrimSpace(correctedDate)
	if action == ActionModify && correctedDate == "" {
		return fmt.Errorf("row %d: modify needs a corrected date", rowIndex)
	}
	if action != ActionModify {
		correctedDate = ""
	}
	c.Decision = &Decision{Action: action, CorrectedDate: correctedDate, Notes: notes, Timestamp: at}
	return nil
}

// Summary describes the progress of a session.
type Summary struct {
	SessionID       string         `json:"session_id" yaml:"session_id"`
	TotalCandidates int            `json:"total_candidates" yaml:"total_candidates"`
	Reviewed        int            `json:"reviewed" yaml:"reviewed"`
	Pending         int            `json:"pending" yaml:"pending"`
	CompletionRate  float64        `json:"completion_rate" yaml:"completion_rate"`
	ActionBreakdown map[Action]int `json:"action_breakdown" yaml:"action_breakdown"`
	Status          string         `json:"status" yaml:"status"`
}

// Summarize counts decisions. The completion rate is a percentage.
func Summarize(s *Session) Summary {
	sum := Summary{
		SessionID:       s.ID,
		TotalCandidates: len(s.Candidates),
		ActionBreakdown: make(map[Action]int),
	}
	for _, c := range s.Candidates {
		if c.Decision == nil || c.Decision.Action == "" {
			continue
		}
		sum.Reviewed++
		sum.ActionBreakdown[c.Decision.Action]++
	}
	sum.Pending = sum.TotalCandidates - sum.Reviewed
	if sum.TotalCandidates > 0 {
		sum.CompletionRate = float64(sum.Reviewed) / float64(sum.TotalCandidates) * 100
	}
	sum.Status = StatusInProgress
	if sum.Pending == 0 {
		sum.Status = StatusCompleted
	}
	return sum
}

// Save writes the session as YAML so a reviewer can fill in decisions.
func Save(path string, s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error encoding review session: %w", err)
	}
	return fileutils.AtomicWriteFile(path, data, 0600)
}

// Load reads a session saved by Save, validating every decision.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading review session: %w", err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error decoding review session: %w", err)
	}
	for i := range s.Candidates {
		d := s.Candidates[i].Decision
		if d == nil || d.Action == "" {
			continue
		}
		action, err := ParseAction(string(d.Action))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", s.Candidates[i].RowIndex, err)
		}
		d.Action = action
		if action == ActionModify && strings.TrimSpace(d.CorrectedDate) == "" {
			return nil, fmt.Errorf("row %d: modify needs a corrected date", s.Candidates[i].RowIndex)
		}
	}
	return &s, nil
}
