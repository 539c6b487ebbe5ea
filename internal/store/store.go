// Package store persists the correction rules used by the date repair engine,
// with numbered snapshots and an audit trail.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"banklytik/statement-normalizer/internal/fileutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
	"banklytik/statement-normalizer/internal/rules"
)

// Audit actions.
const (
	ActionAppend   = "append"
	ActionRollback = "rollback"
)

// Audit statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

const defaultLockTimeout = 10 * time.Second

var versionFile = regexp.MustCompile(`^rules_v(\d+)\.json$`)

// RuleSource is the read side of the store.
type RuleSource interface {
	Load() (rules.RuleSet, error)
}

// AuditEntry is one line of the audit trail.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
}

// AppendReport summarises one Append call.
type AppendReport struct {
	Added      int
	Duplicates int
	Rejected   []error
	// Version is the snapshot taken before writing; 0 when there was no file yet.
	Version int
}

// RuleStore manages the active rule file, its versions directory and audit log.
type RuleStore struct {
	path        string
	versionsDir string
	auditFile   string
	lockTimeout time.Duration
	lockFile    func(ctx context.Context, path string) (func() error, error)
	now         func() time.Time
	logger      logging.Logger
}

// Option configures a RuleStore.
type Option func(*RuleStore)

// WithVersionsDir sets where snapshots are written.
func WithVersionsDir(dir string) Option {
	return func(s *RuleStore) {
		if dir != "" {
			s.versionsDir = dir
		}
	}
}

// WithAuditFile sets the JSON-lines audit file.
func WithAuditFile(path string) Option {
	return func(s *RuleStore) {
		if path != "" {
			s.auditFile = path
		}
	}
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *RuleStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRuleStore creates a store for the rule file at path. Versions and the
// audit log default to siblings of that file.
func NewRuleStore(path string, logger logging.Logger, opts ...Option) *RuleStore {
	dir := filepath.Dir(path)
	s := &RuleStore{
		path:        path,
		versionsDir: filepath.Join(dir, "versions"),
		auditFile:   filepath.Join(dir, "rules_audit.jsonl"),
		lockTimeout: defaultLockTimeout,
		lockFile:    fileutils.Lock,
		now:         time.Now,
		logger:      logging.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the active rule file.
func (s *RuleStore) Path() string {
	return s.path
}

// Definitions reads the raw rules from the active file. A missing file yields
// no rules; a malformed one is an error.
func (s *RuleStore) Definitions() ([]models.CorrectionRule, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading rule file: %w", err)
	}
	return decodeRules(data, s.path)
}

// ReadRules decodes a rule list from any JSON file, such as candidates to import.
func ReadRules(path string) ([]models.CorrectionRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading rule file: %w", err)
	}
	return decodeRules(data, path)
}

func decodeRules(data []byte, path string) ([]models.CorrectionRule, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var defs []models.CorrectionRule
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, &parsererror.InvalidFormatError{
			FilePath:       path,
			ExpectedFormat: "JSON array of rules",
			Msg:            err.Error(),
		}
	}
	return defs, nil
}

// Load returns a compiled snapshot of the active rules. A missing or
// malformed file gives an empty set; rules that do not compile are skipped.
// Both cases are logged, never returned as errors.
func (s *RuleStore) Load() (rules.RuleSet, error) {
	defs, err := s.Definitions()
	if err != nil {
		s.logger.WithError(err).Warn("Rule file unusable, continuing without rules",
			logging.F(logging.FieldFile, s.path))
		return rules.Empty(), nil
	}
	set, errs := rules.Compile(defs)
	for _, e := range errs {
		s.logger.WithError(e).Warn("Skipping invalid correction rule",
			logging.F(logging.FieldFile, s.path))
	}
	s.logger.Debug("Loaded correction rules",
		logging.F(logging.FieldFile, s.path),
		logging.F(logging.FieldCount, set.Len()))
	return set, nil
}

// Validate checks a candidate rule: a non-empty pattern that compiles and a
// non-empty replacement unless the rule only detects garbage.
func Validate(rule models.CorrectionRule) error {
	if _, err := rules.CompileRule(rule); err != nil {
		return err
	}
	if rule.Category != models.RuleCategoryGarbage && (rule.Replace == nil || *rule.Replace == "") {
		return &parsererror.RuleError{Pattern: rule.Pattern, Reason: "replacement required outside the garbage category"}
	}
	return nil
}

// Append validates candidates, drops duplicates of existing rules and of each
// other, snapshots the current file and writes the merged list atomically.
func (s *RuleStore) Append(ctx context.Context, candidates []models.CorrectionRule) (AppendReport, error) {
	var report AppendReport
	unlock, err := s.lock(ctx)
	if err != nil {
		return report, err
	}
	defer unlock()

	existing, err := s.Definitions()
	if err != nil {
		s.audit(ActionAppend, StatusFailed, map[string]any{"error": err.Error()})
		return report, err
	}

	merged := append([]models.CorrectionRule(nil), existing...)
	for _, c := range candidates {
		if err := Validate(c); err != nil {
			report.Rejected = append(report.Rejected, err)
			continue
		}
		if containsRule(merged, c) {
			report.Duplicates++
			continue
		}
		merged = append(merged, c)
		report.Added++
	}

	details := map[string]any{
		"added":      report.Added,
		"duplicates": report.Duplicates,
		"rejected":   len(report.Rejected),
	}
	if report.Added == 0 {
		s.audit(ActionAppend, StatusSuccess, details)
		return report, nil
	}

	version, err := s.snapshot()
	if err != nil {
		details["error"] = err.Error()
		s.audit(ActionAppend, StatusFailed, details)
		return report, err
	}
	report.Version = version
	details["version"] = version

	if err := s.write(merged); err != nil {
		details["error"] = err.Error()
		s.audit(ActionAppend, StatusFailed, details)
		return report, err
	}
	s.audit(ActionAppend, StatusSuccess, details)
	s.logger.Info("Appended correction rules",
		logging.F(logging.FieldFile, s.path),
		logging.F(logging.FieldCount, report.Added),
		logging.F(logging.FieldVersion, version))
	return report, nil
}

func containsRule(list []models.CorrectionRule, r models.CorrectionRule) bool {
	for _, e := range list {
		if e.Equal(r) {
			return true
		}
	}
	return false
}

func (s *RuleStore) write(defs []models.CorrectionRule) error {
	if defs == nil {
		defs = []models.CorrectionRule{}
	}
	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding rules: %w", err)
	}
	return fileutils.AtomicWriteFile(s.path, append(data, '\n'), 0600)
}

// Versions returns the snapshot numbers in ascending order.
func (s *RuleStore) Versions() ([]int, error) {
	entries, err := os.ReadDir(s.versionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error listing versions: %w", err)
	}
	var versions []int
	for _, e := range entries {
		m := versionFile.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil {
			versions = append(versions, n)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

// VersionPath returns the file of snapshot n.
func (s *RuleStore) VersionPath(n int) string {
	return filepath.Join(s.versionsDir, fmt.Sprintf("rules_v%d.json", n))
}

// snapshot copies the active file to the next version number. It returns 0
// without writing when there is no active file.
func (s *RuleStore) snapshot() (int, error) {
	if !fileutils.FileExists(s.path) {
		return 0, nil
	}
	versions, err := s.Versions()
	if err != nil {
		return 0, err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}
	if err := fileutils.CopyFile(s.path, s.VersionPath(next)); err != nil {
		return 0, fmt.Errorf("error writing snapshot: %w", err)
	}
	return next, nil
}

// Rollback restores snapshot n after snapshotting the current file. The
// restored content must decode as a rule list.
func (s *RuleStore) Rollback(ctx context.Context, n int) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	details := map[string]any{"version": n}
	data, err := os.ReadFile(s.VersionPath(n))
	if err != nil {
		err = fmt.Errorf("version %d not available: %w", n, err)
		details["error"] = err.Error()
		s.audit(ActionRollback, StatusFailed, details)
		return err
	}
	defs, err := decodeRules(data, s.VersionPath(n))
	if err != nil {
		details["error"] = err.Error()
		s.audit(ActionRollback, StatusFailed, details)
		return err
	}

	backup, err := s.snapshot()
	if err != nil {
		details["error"] = err.Error()
		s.audit(ActionRollback, StatusFailed, details)
		return err
	}
	details["backup_version"] = backup
	if err := s.write(defs); err != nil {
		details["error"] = err.Error()
		s.audit(ActionRollback, StatusFailed, details)
		return err
	}
	s.audit(ActionRollback, StatusSuccess, details)
	s.logger.Info("Rolled back correction rules",
		logging.F(logging.FieldFile, s.path),
		logging.F(logging.FieldVersion, n))
	return nil
}

// AuditTrail reads every audit entry in order.
func (s *RuleStore) AuditTrail() ([]AuditEntry, error) {
	data, err := os.ReadFile(s.auditFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading audit trail: %w", err)
	}
	var entries []AuditEntry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("error decoding audit trail: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RuleStore) audit(action, status string, details map[string]any) {
	entry := AuditEntry{Timestamp: s.now().UTC(), Action: action, Status: status, Details: details}
	data, err := json.Marshal(entry)
	if err == nil {
		err = fileutils.AppendLine(s.auditFile, data)
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to record audit entry",
			logging.F(logging.FieldOperation, action))
	}
}

// lock takes the rule file lock. The returned release logs unlock failures.
func (s *RuleStore) lock(ctx context.Context) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	unlock, err := s.lockFile(ctx, s.path)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := unlock(); err != nil {
			s.logger.WithError(err).Warn("Failed to release rule file lock",
				logging.F(logging.FieldFile, s.path))
		}
	}, nil
}
