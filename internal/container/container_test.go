package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"banklytik/statement-normalizer/internal/columnmap"
	"banklytik/statement-normalizer/internal/config"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/pdfsource"
	"banklytik/statement-normalizer/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingMapper struct {
	closed bool
}

func (m *closingMapper) Suggest(context.Context, columnmap.Sample) (columnmap.ColumnMapping, error) {
	return columnmap.ColumnMapping{}, context.DeadlineExceeded
}

func (m *closingMapper) Close() error {
	m.closed = true
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

// testConfig points every knowledge file into a temporary directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Rules.File = filepath.Join(dir, "date_rules.json")
	cfg.Rules.VersionsDir = filepath.Join(dir, "versions")
	cfg.Rules.AuditFile = filepath.Join(dir, "rules_audit.jsonl")
	cfg.Learning.LogFile = filepath.Join(dir, "date_learning.jsonl")
	cfg.Learning.HistoryFile = filepath.Join(dir, "review_history.json")
	return cfg
}

func TestNewContainer(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		c, err := NewContainer(nil)
		assert.Nil(t, c)
		assert.EqualError(t, err, "configuration cannot be nil")
	})

	t.Run("defaults without AI", func(t *testing.T) {
		logger := logging.NewMockLogger()
		c, err := NewContainer(testConfig(t), WithLogger(logger))
		require.NoError(t, err)
		defer c.Close()

		assert.Same(t, logger, c.GetLogger())
		assert.Nil(t, c.GetMapper())
		assert.Equal(t, 0, c.GetRuleSet().Len())
		assert.Equal(t, []string{"KUDA", "OPAY"}, c.GetInstitutions().Codes())
		assert.NotNil(t, c.GetPipeline())
		assert.NotNil(t, c.GetReviewWorkflow())
		assert.NotNil(t, c.GetExporter())
		assert.NotNil(t, c.GetHistory())
		assert.True(t, logger.HasEntry("INFO", "AI column mapping disabled"))
	})

	t.Run("AI enabled without key degrades", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AI.Enabled = true
		logger := logging.NewMockLogger()
		c, err := NewContainer(cfg, WithLogger(logger))
		require.NoError(t, err)
		assert.Nil(t, c.GetMapper())
		assert.True(t, logger.HasEntry("WARN", "AI column mapping unavailable"))
	})

	t.Run("injected mapper is closed", func(t *testing.T) {
		m := &closingMapper{}
		c, err := NewContainer(testConfig(t), WithLogger(logging.NewMockLogger()), WithMapper(m))
		require.NoError(t, err)
		assert.Same(t, m, c.GetMapper())
		require.NoError(t, c.Close())
		assert.True(t, m.closed)
	})

	t.Run("missing profiles file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Institution.ProfilesFile = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := NewContainer(cfg, WithLogger(logging.NewMockLogger()))
		assert.Error(t, err)
	})

	t.Run("corrupt history starts empty", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.Learning.HistoryFile, []byte("{"), 0o600))
		logger := logging.NewMockLogger()
		c, err := NewContainer(cfg, WithLogger(logger))
		require.NoError(t, err)
		assert.Empty(t, c.GetHistory().Signatures())
		assert.True(t, logger.HasEntry("WARN", "Review history unusable, starting empty"))
	})
}

func TestContainer_LoadsRulesSnapshot(t *testing.T) {
	cfg := testConfig(t)
	rulesJSON := `[{"pattern": "(\\d{1,2})([A-Za-z]{3})", "replace": "$1 $2", "category": "spacing", "title": "split day and month"}]`
	require.NoError(t, os.WriteFile(cfg.Rules.File, []byte(rulesJSON), 0o600))

	c, err := NewContainer(cfg, WithLogger(logging.NewMockLogger()))
	require.NoError(t, err)
	assert.Equal(t, 1, c.GetRuleSet().Len())
}

func TestContainer_LoadDocument(t *testing.T) {
	dir := t.TempDir()

	t.Run("OCR JSON", func(t *testing.T) {
		c, err := NewContainer(testConfig(t), WithLogger(logging.NewMockLogger()))
		require.NoError(t, err)

		path := filepath.Join(dir, "statement.json")
		body := `{"cells": [{"table_id": 1, "page": 1, "row": 1, "col": 1, "text": "Date"}], "lines": []}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		doc, err := c.LoadDocument(path)
		require.NoError(t, err)
		assert.Equal(t, path, doc.Source)
		assert.Len(t, doc.Cells, 1)
	})

	t.Run("PDF through the extractor", func(t *testing.T) {
		extractor := pdfsource.NewMockExtractor([]models.TextLine{
			{Page: 1, Text: "Kuda Microfinance Bank Statement"},
			{Page: 1, Text: "12/02/2025 10:15:30 Airtime purchase 08012345678 ₦500.00 ₦4,500.00"},
		}, nil)
		c, err := NewContainer(testConfig(t),
			WithLogger(logging.NewMockLogger()),
			WithPDFExtractor(extractor),
			WithClock(fixedNow))
		require.NoError(t, err)

		path := filepath.Join(dir, "statement.pdf")
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7\n"), 0o600))

		doc, err := c.LoadDocument(path)
		require.NoError(t, err)
		assert.Equal(t, []string{path}, extractor.Calls)
		require.Len(t, doc.Lines, 2)

		res := c.GetPipeline().Run(context.Background(), doc, pipeline.Options{})
		assert.Equal(t, pipeline.StrategyInstitution, res.Strategy)
		assert.Len(t, res.Rows, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		c, err := NewContainer(testConfig(t), WithLogger(logging.NewMockLogger()))
		require.NoError(t, err)
		_, err = c.LoadDocument(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})
}
