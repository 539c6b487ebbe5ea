package learning

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"banklytik/statement-normalizer/internal/daterepair"
	"banklytik/statement-normalizer/internal/fileutils"
	"banklytik/statement-normalizer/internal/logging"
)

const lockTimeout = 5 * time.Second

// LogEntry is one line of the learning log.
type LogEntry struct {
	Original  string    `json:"original"`
	Repaired  string    `json:"repaired"`
	Reason    string    `json:"reason"`
	Signature string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
}

// FailureLog appends unparseable date strings to a JSON-lines file.
type FailureLog struct {
	path     string
	lockFile func(ctx context.Context, path string) (func() error, error)
	logger   logging.Logger
}

// NewFailureLog creates a log writing to path.
func NewFailureLog(path string, logger logging.Logger) *FailureLog {
	return &FailureLog{path: path, lockFile: fileutils.Lock, logger: logging.OrDefault(logger)}
}

// RecordFailure appends one failure. Blank originals are not recorded.
func (l *FailureLog) RecordFailure(f daterepair.Failure) error {
	if strings.TrimSpace(f.Original) == "" {
		return nil
	}
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := LogEntry{
		Original:  f.Original,
		Repaired:  f.Repaired,
		Reason:    f.Reason,
		Signature: Signature(f.Repaired, nil),
		Timestamp: ts.UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error encoding learning entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	unlock, err := l.lockFile(ctx, l.path)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			l.logger.WithError(err).Warn("Failed to release learning log lock",
				logging.F(logging.FieldFile, l.path))
		}
	}()
	return fileutils.AppendLine(l.path, data)
}

// Entries reads the whole log. Lines that do not decode are skipped.
func (l *FailureLog) Entries() ([]LogEntry, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening learning log: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			l.logger.WithError(err).Warn("Skipping unreadable learning log line",
				logging.F(logging.FieldRow, line))
			continue
		}
		if e.Signature == "" {
			e.Signature = Signature(e.Repaired, nil)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading learning log: %w", err)
	}
	return entries, nil
}

// PatternReport aggregates the failures that share a signature.
type PatternReport struct {
	Signature string   `json:"signature"`
	Count     int      `json:"count"`
	Examples  []string `json:"examples"`
	Reasons   []string `json:"reasons"`
}

const maxExamples = 5

// MineLog groups failures by signature, most frequent first. Each report
// keeps up to five distinct examples and every distinct reason.
func MineLog(entries []LogEntry) []PatternReport {
	index := make(map[string]*PatternReport)
	var order []string
	for _, e := range entries {
		sig := e.Signature
		if sig == "" {
			sig = Signature(e.Repaired, nil)
		}
		r, ok := index[sig]
		if !ok {
			r = &PatternReport{Signature: sig}
			index[sig] = r
			order = append(order, sig)
		}
		r.Count++
		if len(r.Examples) < maxExamples && !contains(r.Examples, e.Original) {
			r.Examples = append(r.Examples, e.Original)
		}
		if e.Reason != "" && !contains(r.Reasons, e.Reason) {
			r.Reasons = append(r.Reasons, e.Reason)
		}
	}

	out := make([]PatternReport, 0, len(order))
	for _, sig := range order {
		out = append(out, *index[sig])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Signature < out[j].Signature
	})
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
