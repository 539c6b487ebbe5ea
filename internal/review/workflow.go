package review

import (
	"time"

	"banklytik/statement-normalizer/internal/daterepair"
	"banklytik/statement-normalizer/internal/datevalidation"
	"banklytik/statement-normalizer/internal/learning"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
)

// Workflow creates sessions and applies their decisions to rows.
type Workflow struct {
	engine    *daterepair.Engine
	validator *datevalidation.Validator
	now       func() time.Time
	logger    logging.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the session and decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorkflow creates a Workflow. The engine and validator re-check modified dates.
func NewWorkflow(engine *daterepair.Engine, validator *datevalidation.Validator, logger logging.Logger, opts ...Option) *Workflow {
	w := &Workflow{engine: engine, validator: validator, now: time.Now, logger: logging.OrDefault(logger)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start opens a session over the flagged rows.
func (w *Workflow) Start(rows []models.TransactionRow) *Session {
	s := NewSession(rows, w.now())
	w.logger.Info("Created review session",
		logging.F(logging.FieldSessionID, s.ID),
		logging.F(logging.FieldCount, len(s.Candidates)))
	return s
}

// ApplyDecision records one decision on the session.
func (w *Workflow) ApplyDecision(s *Session, rowIndex int, action Action, correctedDate, notes string) error {
	if err := s.Decide(rowIndex, action, correctedDate, notes, w.now()); err != nil {
		return err
	}
	w.logger.Debug("Recorded review decision",
		logging.F(logging.FieldSessionID, s.ID),
		logging.F(logging.FieldRow, rowIndex),
		logging.F(logging.FieldOperation, string(action)))
	return nil
}

// ApplyApproved returns new rows with the session's decisions applied and the
// number of rows changed. Approve keeps the current date, modify re-runs
// repair, parsing and validation on the corrected text (RawDate is kept) and
// reject clears the date. Skipped and undecided rows are untouched.
func (w *Workflow) ApplyApproved(rows []models.TransactionRow, s *Session) ([]models.TransactionRow, int) {
	out := make([]models.TransactionRow, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}

	changed := 0
	for _, c := range s.Candidates {
		if c.Decision == nil {
			continue
		}
		if c.RowIndex < 0 || c.RowIndex >= len(out) {
			w.logger.Warn("Review decision refers to a missing row",
				logging.F(logging.FieldSessionID, s.ID),
				logging.F(logging.FieldRow, c.RowIndex))
			continue
		}
		row := &out[c.RowIndex]
		if row.RowIssues == nil {
			row.RowIssues = models.NewIssueSet()
		}
		switch c.Decision.Action {
		case ActionApprove:
			row.Review = models.ReviewApproved
		case ActionReject:
			row.Date = nil
			row.Inference = nil
			delete(row.RowIssues, models.RowIssueDateInferred)
			row.RowIssues.Add(models.RowIssueReviewRejected)
			row.RowIssues.Add(models.RowIssueInvalidDate)
			row.Review = models.ReviewRejected
		case ActionModify:
			w.modify(row, c.Decision.CorrectedDate)
		default:
			continue
		}
		changed++
	}
	w.logger.Info("Applied review decisions",
		logging.F(logging.FieldSessionID, s.ID),
		logging.F(logging.FieldCount, changed))
	return out, changed
}

func (w *Workflow) modify(row *models.TransactionRow, corrected string) {
	repaired, corrections := w.engine.Repair(corrected)
	outcome := w.engine.Parse(repaired)
	row.DateValidation = w.validator.Validate(datevalidation.Input{
		Raw:         corrected,
		Repaired:    repaired,
		Parsed:      outcome.Time,
		Corrections: corrections,
		Strategy:    outcome.Strategy,
	})
	row.Inference = nil
	delete(row.RowIssues, models.RowIssueDateInferred)
	row.Date = nil
	if p := row.DateValidation.Parsed; p != nil {
		d := *p
		row.Date = &d
		delete(row.RowIssues, models.RowIssueInvalidDate)
	} else {
		row.RowIssues.Add(models.RowIssueInvalidDate)
	}
	row.Review = models.ReviewModified
}

// RecordOutcomes feeds the session's decisions into the review history and
// returns how many were recorded. Skips are not outcomes.
func RecordOutcomes(s *Session, history *learning.History) int {
	n := 0
	for _, c := range s.Candidates {
		if c.Decision == nil {
			continue
		}
		var fb learning.Feedback
		corrected := c.CurrentDate
		switch c.Decision.Action {
		case ActionApprove:
			fb = learning.FeedbackApproved
		case ActionReject:
			fb, corrected = learning.FeedbackRejected, ""
		case ActionModify:
			fb, corrected = learning.FeedbackModified, c.Decision.CorrectedDate
		default:
			continue
		}
		text := c.Repaired
		if text == "" {
			text = c.OriginalDate
		}
		history.Record(text, corrected, c.Issues, fb)
		n++
	}
	return n
}
