// Package container wires the normalization pipeline and its collaborators
// from a Config. Every command builds one Container and reads its
// dependencies from it.
package container

import (
	"context"
	"fmt"
	"io"
	"time"

	"banklytik/statement-normalizer/internal/columnmap"
	"banklytik/statement-normalizer/internal/config"
	"banklytik/statement-normalizer/internal/daterepair"
	"banklytik/statement-normalizer/internal/datevalidation"
	"banklytik/statement-normalizer/internal/export"
	"banklytik/statement-normalizer/internal/grid"
	"banklytik/statement-normalizer/internal/header"
	"banklytik/statement-normalizer/internal/inference"
	"banklytik/statement-normalizer/internal/institution"
	"banklytik/statement-normalizer/internal/learning"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/merge"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/normalizer"
	"banklytik/statement-normalizer/internal/ocr"
	"banklytik/statement-normalizer/internal/pdfsource"
	"banklytik/statement-normalizer/internal/pipeline"
	"banklytik/statement-normalizer/internal/review"
	"banklytik/statement-normalizer/internal/rules"
	"banklytik/statement-normalizer/internal/store"
)

// Container holds all application dependencies. It is immutable after creation.
//
// The rule set is read once when the container is built, so every statement
// processed through one container sees the same snapshot.
type Container struct {
	logger     logging.Logger
	config     *config.Config
	rules      *store.RuleStore
	ruleSet    rules.RuleSet
	failures   *learning.FailureLog
	history    *learning.History
	engine     *daterepair.Engine
	validator  *datevalidation.Validator
	normalizer *normalizer.Normalizer
	mapper     columnmap.Mapper
	pipeline   *pipeline.Orchestrator
	workflow   *review.Workflow
	exporter   *export.Writer
	ocr        *ocr.Loader
	pdf        *pdfsource.Source
	registry   *institution.Registry
}

// Option customizes a Container, mostly for tests.
type Option func(*options)

type options struct {
	logger       logging.Logger
	mapper       columnmap.Mapper
	pdfExtractor pdfsource.Extractor
	now          func() time.Time
}

// WithLogger replaces the logger built from the config.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMapper replaces the Gemini column mapper.
func WithMapper(m columnmap.Mapper) Option {
	return func(o *options) { o.mapper = m }
}

// WithPDFExtractor replaces the PDF text extractor.
func WithPDFExtractor(e pdfsource.Extractor) Option {
	return func(o *options) { o.pdfExtractor = e }
}

// WithClock fixes the current time used by date checks and review sessions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewContainer creates and wires all application dependencies.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.NewLogrusAdapterFromLogger(config.ConfigureLoggingFromConfig(cfg))
	}

	ruleStore := store.NewRuleStore(cfg.Rules.File, logger,
		store.WithVersionsDir(cfg.Rules.VersionsDir),
		store.WithAuditFile(cfg.Rules.AuditFile),
		store.WithClock(o.now))
	ruleSet, _ := ruleStore.Load()

	failures := learning.NewFailureLog(cfg.Learning.LogFile, logger)
	history, err := learning.LoadHistory(cfg.Learning.HistoryFile, cfg.Learning.MinAttempts)
	if err != nil {
		logger.WithError(err).Warn("Review history unusable, starting empty",
			logging.F(logging.FieldFile, cfg.Learning.HistoryFile))
		history = learning.NewHistory(cfg.Learning.MinAttempts)
	}

	engine := daterepair.NewEngine(ruleSet, logger,
		daterepair.WithMaxPasses(cfg.Repair.MaxPasses),
		daterepair.WithFailureRecorder(failures),
		daterepair.WithClock(o.now))
	validator := datevalidation.NewValidator(logger,
		datevalidation.WithThresholds(cfg.Validation.MaxFutureDays, cfg.Validation.MaxPastYears),
		datevalidation.WithRuleSet(ruleSet),
		datevalidation.WithAdvisor(learning.NewAdvisor(history, logger)),
		datevalidation.WithClock(o.now))
	resolver := inference.NewResolver(logger,
		inference.WithDefaultDay(cfg.Inference.DefaultDay),
		inference.WithClock(o.now))
	norm := normalizer.New(engine, validator, resolver, logger)

	profiles, err := institution.LoadProfiles(cfg.Institution.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("error loading institution profiles: %w", err)
	}
	registry := institution.NewRegistry(profiles, logger)
	detector := institution.NewDetector(profiles, cfg.Institution.SniffLines, logger)

	mapper := o.mapper
	if mapper == nil && cfg.AI.Enabled {
		gemini, err := columnmap.NewGeminiMapper(context.Background(), cfg.AI.APIKey, cfg.AI.Model, logger,
			columnmap.WithTimeout(time.Duration(cfg.AI.TimeoutSeconds)*time.Second),
			columnmap.WithMaxChars(cfg.AI.MaxPayloadChars))
		if err != nil {
			logger.WithError(err).Warn("AI column mapping unavailable")
		} else {
			mapper = gemini
		}
	}
	if mapper != nil {
		logger.Info("AI column mapping enabled", logging.F("model", cfg.AI.Model))
	} else {
		logger.Info("AI column mapping disabled")
	}

	orchestrator := pipeline.New(norm, logger,
		pipeline.WithInstitutions(detector, registry),
		pipeline.WithMapper(mapper),
		pipeline.WithSampleLimits(cfg.AI.SampleTables, cfg.AI.SampleRows, cfg.AI.MaxPayloadChars),
		pipeline.WithGrid(grid.NewReconstructor(logger)),
		pipeline.WithMinTableScore(cfg.Tables.MinScore),
		pipeline.WithHeaderResolver(header.NewResolver(logger,
			header.WithFuzzyThreshold(cfg.Header.FuzzyThreshold),
			header.WithMinMatches(cfg.Header.MinMatches))),
		pipeline.WithMerger(merge.NewOrchestrator(logger,
			merge.WithMatchThreshold(cfg.Merge.MatchThreshold),
			merge.WithWeights(cfg.Merge.TypeWeight, cfg.Merge.NameWeight, cfg.Merge.ContentWeight),
			merge.WithHeaderKeywordRatio(cfg.Merge.HeaderKeywordRatio))))

	delimiter := ','
	if r := []rune(cfg.Output.Delimiter); len(r) == 1 {
		delimiter = r[0]
	}

	logger.Debug("Container initialized",
		logging.F(logging.FieldCount, ruleSet.Len()),
		logging.F("institutions", registry.Codes()))

	return &Container{
		logger:     logger,
		config:     cfg,
		rules:      ruleStore,
		ruleSet:    ruleSet,
		failures:   failures,
		history:    history,
		engine:     engine,
		validator:  validator,
		normalizer: norm,
		mapper:     mapper,
		pipeline:   orchestrator,
		workflow:   review.NewWorkflow(engine, validator, logger, review.WithClock(o.now)),
		exporter:   export.NewWriter(logger, export.WithDelimiter(delimiter)),
		ocr:        ocr.NewLoader(cfg.OCR.MaxPages, logger),
		pdf:        pdfsource.NewSource(o.pdfExtractor, logger),
		registry:   registry,
	}, nil
}

// LoadDocument reads a statement: digital PDFs through the PDF text source,
// anything else as an OCR JSON dump.
func (c *Container) LoadDocument(path string) (models.OCRDocument, error) {
	isPDF, err := pdfsource.IsPDF(path)
	if err != nil {
		return models.OCRDocument{}, err
	}
	if isPDF {
		doc, err := c.pdf.Load(path)
		if err != nil {
			return doc, err
		}
		return ocr.SamplePages(doc, c.config.OCR.MaxPages), nil
	}
	return c.ocr.Load(path)
}

// GetLogger returns the container's logger.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the configuration the container was built from.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetRuleStore returns the correction-rule store.
func (c *Container) GetRuleStore() *store.RuleStore {
	return c.rules
}

// GetRuleSet returns the rule snapshot loaded at startup.
func (c *Container) GetRuleSet() rules.RuleSet {
	return c.ruleSet
}

// GetFailureLog returns the learning log of unparseable dates.
func (c *Container) GetFailureLog() *learning.FailureLog {
	return c.failures
}

// GetHistory returns the review outcome history.
func (c *Container) GetHistory() *learning.History {
	return c.history
}

// GetEngine returns the date repair engine.
func (c *Container) GetEngine() *daterepair.Engine {
	return c.engine
}

// GetValidator returns the date validator.
func (c *Container) GetValidator() *datevalidation.Validator {
	return c.validator
}

// GetMapper returns the AI column mapper, or nil when AI is disabled.
func (c *Container) GetMapper() columnmap.Mapper {
	return c.mapper
}

// GetPipeline returns the strategy orchestrator.
func (c *Container) GetPipeline() *pipeline.Orchestrator {
	return c.pipeline
}

// GetReviewWorkflow returns the date review workflow.
func (c *Container) GetReviewWorkflow() *review.Workflow {
	return c.workflow
}

// GetExporter returns the transaction writer.
func (c *Container) GetExporter() *export.Writer {
	return c.exporter
}

// GetInstitutions returns the institution parser registry.
func (c *Container) GetInstitutions() *institution.Registry {
	return c.registry
}

// Close releases the AI client, if any.
func (c *Container) Close() error {
	if closer, ok := c.mapper.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("error closing column mapper: %w", err)
		}
	}
	c.logger.Debug("Container closed")
	return nil
}
