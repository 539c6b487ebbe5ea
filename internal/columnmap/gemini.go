package columnmap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
)

const (
	serviceName = "gemini"

	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 30 * time.Second
)

// generateFunc sends one prompt and returns the raw text answer.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// GeminiMapper asks a Gemini model for the column mapping.
type GeminiMapper struct {
	generate generateFunc
	closer   func() error
	timeout  time.Duration
	maxChars int
	logger   logging.Logger
}

// GeminiOption configures a GeminiMapper.
type GeminiOption func(*GeminiMapper)

// WithTimeout bounds every Suggest call.
func WithTimeout(d time.Duration) GeminiOption {
	return func(m *GeminiMapper) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithMaxChars caps the encoded sample size.
func WithMaxChars(n int) GeminiOption {
	return func(m *GeminiMapper) {
		if n > 0 {
			m.maxChars = n
		}
	}
}

// NewGeminiMapper creates a mapper backed by the Gemini API.
func NewGeminiMapper(ctx context.Context, apiKey, model string, logger logging.Logger, opts ...GeminiOption) (*GeminiMapper, error) {
	if apiKey == "" {
		return nil, &parsererror.ServiceError{Service: serviceName, Op: "init", Err: errors.New("API key not set")}
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &parsererror.ServiceError{Service: serviceName, Op: "init", Err: err}
	}
	gm := client.GenerativeModel(model)
	gm.SetTemperature(0)

	m := newMapper(func(ctx context.Context, prompt string) (string, error) {
		resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
		return responseText(resp), nil
	}, logger, opts...)
	m.closer = client.Close
	return m, nil
}

func newMapper(generate generateFunc, logger logging.Logger, opts ...GeminiOption) *GeminiMapper {
	m := &GeminiMapper{
		generate: generate,
		timeout:  DefaultTimeout,
		maxChars: DefaultMaxChars,
		logger:   logging.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// Close releases the underlying client.
func (m *GeminiMapper) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Suggest sends the sample and validates the answer. Timeouts, transport
// failures and malformed answers all come back as errors.
func (m *GeminiMapper) Suggest(ctx context.Context, sample Sample) (ColumnMapping, error) {
	prompt, err := BuildPrompt(sample, m.maxChars)
	if err != nil {
		return ColumnMapping{}, &parsererror.MappingError{Field: "sample", Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	text, err := m.generate(ctx, prompt)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return ColumnMapping{}, &parsererror.ServiceError{Service: serviceName, Op: "generate", Err: err}
	}

	mapping, err := ParseResponse(text, sample)
	if err != nil {
		m.logger.WithError(err).Warn("Rejected column mapping response",
			logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
		return ColumnMapping{}, err
	}
	m.logger.Debug("Received column mapping",
		logging.F(logging.FieldCount, len(mapping.Tables)),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return mapping, nil
}

const instructions = `You are given a JSON sample of tables extracted by OCR from a bank statement.
Identify the tables that hold transaction rows and map their ORIGINAL header texts, spelled
exactly as given, to one of these roles: %s.
Return exactly one JSON object and nothing else, with this schema:
{"tables":[{"table_id":<id>,"page":<page>,"original_header":["..."],"column_mapping":{"<header>":"<role>"}}],"reasoning_summary":"<one sentence>"}
Every mapped table needs a date column and at least one of debit, credit, debit_credit or amount.

Sample:
%s`

// BuildPrompt renders the request text for a sample of at most maxChars.
func BuildPrompt(sample Sample, maxChars int) (string, error) {
	_, payload, err := BuildSample(toTables(sample), len(sample.Tables), maxSampleRows(sample), maxChars)
	if err != nil {
		return "", err
	}
	roles := make([]string, 0, len(models.CanonicalFields))
	for _, f := range models.CanonicalFields {
		roles = append(roles, string(f))
	}
	return fmt.Sprintf(instructions, strings.Join(roles, ", "), payload), nil
}

func toTables(sample Sample) []models.ReconstructedTable {
	out := make([]models.ReconstructedTable, 0, len(sample.Tables))
	for _, t := range sample.Tables {
		matrix := append([][]string{t.Header}, t.Rows...)
		out = append(out, models.ReconstructedTable{TableID: t.TableID, Page: t.Page, Matrix: matrix})
	}
	return out
}

func maxSampleRows(sample Sample) int {
	n := 0
	for _, t := range sample.Tables {
		n = max(n, len(t.Rows))
	}
	return n
}
