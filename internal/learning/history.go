package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"banklytik/statement-normalizer/internal/datevalidation"
	"banklytik/statement-normalizer/internal/fileutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
)

// Feedback is a reviewer's verdict on a flagged date.
type Feedback string

const (
	FeedbackApproved Feedback = "approved"
	FeedbackRejected Feedback = "rejected"
	FeedbackModified Feedback = "modified"
)

// DefaultMinAttempts is the number of outcomes needed before advice is given.
const DefaultMinAttempts = 3

const maxOutcomes = 20

// Outcome is one recorded review verdict.
type Outcome struct {
	Original  string    `json:"original"`
	Corrected string    `json:"corrected"`
	Feedback  Feedback  `json:"feedback"`
	Timestamp time.Time `json:"timestamp"`
}

// PatternStats counts the verdicts for one signature. Only the most recent
// outcomes are kept.
type PatternStats struct {
	TotalAttempts int       `json:"total_attempts"`
	Successful    int       `json:"successful_corrections"`
	Failed        int       `json:"failed_corrections"`
	Outcomes      []Outcome `json:"corrections"`
}

// SuccessRate is the approved share of all attempts.
func (p PatternStats) SuccessRate() float64 {
	if p.TotalAttempts == 0 {
		return 0
	}
	return float64(p.Successful) / float64(p.TotalAttempts)
}

// Recommendation is the action suggested for a signature.
type Recommendation struct {
	Category    models.Category
	Confidence  models.Confidence
	SuccessRate float64
	Attempts    int
}

// History holds review statistics per signature. It is safe for concurrent use.
type History struct {
	mu          sync.RWMutex
	patterns    map[string]*PatternStats
	minAttempts int
	now         func() time.Time
}

// NewHistory creates an empty history. minAttempts <= 0 means the default.
func NewHistory(minAttempts int) *History {
	if minAttempts <= 0 {
		minAttempts = DefaultMinAttempts
	}
	return &History{patterns: make(map[string]*PatternStats), minAttempts: minAttempts, now: time.Now}
}

// Record adds one verdict for the date text and its issues.
func (h *History) Record(text, corrected string, issues []string, feedback Feedback) string {
	sig := Signature(text, issues)
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.patterns[sig]
	if !ok {
		p = &PatternStats{}
		h.patterns[sig] = p
	}
	p.TotalAttempts++
	switch feedback {
	case FeedbackApproved:
		p.Successful++
	case FeedbackRejected:
		p.Failed++
	}
	p.Outcomes = append(p.Outcomes, Outcome{Original: text, Corrected: corrected, Feedback: feedback, Timestamp: h.now().UTC()})
	if len(p.Outcomes) > maxOutcomes {
		p.Outcomes = p.Outcomes[len(p.Outcomes)-maxOutcomes:]
	}
	return sig
}

// Stats returns a copy of the statistics for a signature.
func (h *History) Stats(sig string) (PatternStats, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.patterns[sig]
	if !ok {
		return PatternStats{}, false
	}
	out := *p
	out.Outcomes = append([]Outcome(nil), p.Outcomes...)
	return out, true
}

// Signatures lists the known signatures in lexical order.
func (h *History) Signatures() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.patterns))
	for sig := range h.patterns {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out
}

// Recommend derives the action for a signature once it has enough attempts:
// approvals outnumbering rejections two to one suggest AUTO_CORRECT, the
// reverse suggests FLAG_CRITICAL, anything else FLAG_REVIEW. Confidence
// follows the share of the winning verdict.
func (h *History) Recommend(sig string) (Recommendation, bool) {
	p, ok := h.Stats(sig)
	if !ok || p.TotalAttempts < h.minAttempts {
		return Recommendation{}, false
	}
	rec := Recommendation{SuccessRate: p.SuccessRate(), Attempts: p.TotalAttempts}
	rejectRate := float64(p.Failed) / float64(p.TotalAttempts)
	switch {
	case p.Successful > 2*p.Failed:
		rec.Category = models.CategoryAutoCorrect
		rec.Confidence = confidence(rec.SuccessRate)
	case p.Failed > 2*p.Successful:
		rec.Category = models.CategoryFlagCritical
		rec.Confidence = confidence(rejectRate)
	default:
		rec.Category = models.CategoryFlagReview
		rec.Confidence = confidence(max(rec.SuccessRate, rejectRate))
	}
	return rec, true
}

func confidence(rate float64) models.Confidence {
	switch {
	case rate >= 0.8:
		return models.ConfidenceHigh
	case rate >= 0.6:
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

// MarshalJSON encodes the history as {"pattern_success_rates": {...}}.
func (h *History) MarshalJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return json.Marshal(historyFile{Patterns: h.patterns})
}

type historyFile struct {
	Patterns map[string]*PatternStats `json:"pattern_success_rates"`
}

// LoadHistory reads a history file. A missing file gives an empty history.
func LoadHistory(path string, minAttempts int) (*History, error) {
	h := NewHistory(minAttempts)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading review history: %w", err)
	}
	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error decoding review history: %w", err)
	}
	for sig, p := range file.Patterns {
		if p != nil {
			h.patterns[sig] = p
		}
	}
	return h, nil
}

// SaveHistory writes the history atomically under a file lock. A failure to
// release the lock is returned when the write itself succeeded.
func SaveHistory(path string, h *History) (err error) {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding review history: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	unlock, err := fileutils.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("error releasing review history lock: %w", uerr)
		}
	}()
	return fileutils.AtomicWriteFile(path, data, 0600)
}

// Advisor serves history recommendations to the date validator. It only
// answers when the recommendation departs from FLAG_REVIEW.
type Advisor struct {
	history *History
	logger  logging.Logger
}

// NewAdvisor creates an Advisor over h.
func NewAdvisor(h *History, logger logging.Logger) *Advisor {
	return &Advisor{history: h, logger: logging.OrDefault(logger)}
}

// Advise implements datevalidation.Advisor.
func (a *Advisor) Advise(repaired string, issues []models.IssueTag) (datevalidation.Advice, bool) {
	if a == nil || a.history == nil {
		return datevalidation.Advice{}, false
	}
	tags := make([]string, len(issues))
	for i, t := range issues {
		tags[i] = string(t)
	}
	sig := Signature(repaired, tags)
	rec, ok := a.history.Recommend(sig)
	if !ok || rec.Category == models.CategoryFlagReview {
		return datevalidation.Advice{}, false
	}
	a.logger.Debug("Applying learned advice",
		logging.F(logging.FieldRawDate, repaired),
		logging.F(logging.FieldCategory, string(rec.Category)),
		logging.F(logging.FieldCount, rec.Attempts))
	return datevalidation.Advice{Category: rec.Category, Confidence: rec.Confidence}, true
}

var _ datevalidation.Advisor = (*Advisor)(nil)
