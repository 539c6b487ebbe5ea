// Package columnmap asks an external suggestion service which OCR table
// columns hold which transaction fields, and applies validated answers.
package columnmap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"banklytik/statement-normalizer/internal/header"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
	"banklytik/statement-normalizer/internal/textutils"
)

// Sample size defaults.
const (
	DefaultMaxTables = 6
	DefaultMaxRows   = 5
	DefaultMaxChars  = 120000
)

// Mapper suggests a column mapping for a sample of reconstructed tables.
// Any error means the suggestion must be ignored.
type Mapper interface {
	Suggest(ctx context.Context, sample Sample) (ColumnMapping, error)
}

// SampleTable is the compact view of one table sent to the service.
type SampleTable struct {
	TableID int        `json:"table_id"`
	Page    int        `json:"page"`
	Header  []string   `json:"header"`
	Rows    [][]string `json:"rows"`
}

// Sample is the request payload.
type Sample struct {
	Tables []SampleTable `json:"tables"`
}

// TableMapping assigns canonical fields to the original header texts of one table.
type TableMapping struct {
	TableID int                              `json:"table_id"`
	Page    int                              `json:"page"`
	Header  []string                         `json:"original_header"`
	Columns map[string]models.CanonicalField `json:"column_mapping"`
}

// ColumnMapping is a validated suggestion.
type ColumnMapping struct {
	Tables    []TableMapping `json:"tables"`
	Reasoning string         `json:"reasoning_summary,omitempty"`
}

// BuildSample takes the header and first rows of up to maxTables tables and
// drops rows, then tables, until the encoded payload fits in maxChars.
func BuildSample(tables []models.ReconstructedTable, maxTables, maxRows, maxChars int) (Sample, []byte, error) {
	if maxTables <= 0 {
		maxTables = DefaultMaxTables
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var sample Sample
	for _, t := range tables {
		if len(sample.Tables) == maxTables {
			break
		}
		if t.RowCount() == 0 {
			continue
		}
		st := SampleTable{TableID: t.TableID, Page: t.Page, Header: append([]string(nil), t.Matrix[0]...)}
		for _, row := range t.Matrix[1:min(len(t.Matrix), maxRows+1)] {
			st.Rows = append(st.Rows, append([]string(nil), row...))
		}
		sample.Tables = append(sample.Tables, st)
	}
	if len(sample.Tables) == 0 {
		return Sample{}, nil, fmt.Errorf("no tables to sample")
	}

	for {
		payload, err := json.Marshal(sample)
		if err != nil {
			return Sample{}, nil, err
		}
		if len(payload) <= maxChars {
			return sample, payload, nil
		}
		if !shrink(&sample) {
			return Sample{}, nil, fmt.Errorf("sample exceeds %d characters", maxChars)
		}
	}
}

// shrink removes the last sample row of the widest table, or the last table
// once no table has rows left. It reports false when nothing can go.
func shrink(s *Sample) bool {
	widest := -1
	for i, t := range s.Tables {
		if len(t.Rows) > 0 && (widest < 0 || len(t.Rows) >= len(s.Tables[widest].Rows)) {
			widest = i
		}
	}
	if widest >= 0 {
		rows := s.Tables[widest].Rows
		s.Tables[widest].Rows = rows[:len(rows)-1]
		return true
	}
	if len(s.Tables) > 1 {
		s.Tables = s.Tables[:len(s.Tables)-1]
		return true
	}
	return false
}

// ExtractJSON returns the first complete JSON object in text, tolerating
// markdown fences and prose around it.
func ExtractJSON(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, &parsererror.MappingError{Field: "response", Reason: "no JSON object found"}
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, &parsererror.MappingError{Field: "response", Reason: "unterminated JSON object"}
}

type rawTable struct {
	TableID *int              `json:"table_id"`
	Page    int               `json:"page"`
	Header  []string          `json:"original_header"`
	Mapping map[string]string `json:"column_mapping"`
}

type rawResponse struct {
	Tables    []rawTable `json:"tables"`
	Reasoning string     `json:"reasoning_summary"`
}

// ParseResponse decodes and validates a service answer against the sample it
// was asked about. Any defect rejects the whole response.
func ParseResponse(text string, sample Sample) (ColumnMapping, error) {
	data, err := ExtractJSON(text)
	if err != nil {
		return ColumnMapping{}, err
	}
	var raw rawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return ColumnMapping{}, &parsererror.MappingError{Field: "response", Reason: err.Error()}
	}
	if len(raw.Tables) == 0 {
		return ColumnMapping{}, &parsererror.MappingError{Field: "tables", Reason: "missing or empty"}
	}

	known := make(map[int]SampleTable, len(sample.Tables))
	for _, t := range sample.Tables {
		known[t.TableID] = t
	}

	out := ColumnMapping{Reasoning: raw.Reasoning}
	seen := make(map[int]bool)
	for i, rt := range raw.Tables {
		field := fmt.Sprintf("tables[%d]", i)
		if rt.TableID == nil {
			return ColumnMapping{}, &parsererror.MappingError{Field: field + ".table_id", Reason: "missing"}
		}
		st, ok := known[*rt.TableID]
		if !ok {
			return ColumnMapping{}, &parsererror.MappingError{Field: field + ".table_id", Reason: fmt.Sprintf("unknown table %d", *rt.TableID)}
		}
		if seen[*rt.TableID] {
			return ColumnMapping{}, &parsererror.MappingError{Field: field + ".table_id", Reason: "duplicate table"}
		}
		seen[*rt.TableID] = true
		tm, err := validateTable(field, rt, st)
		if err != nil {
			return ColumnMapping{}, err
		}
		out.Tables = append(out.Tables, tm)
	}
	return out, nil
}

func validateTable(field string, rt rawTable, st SampleTable) (TableMapping, error) {
	if len(rt.Mapping) == 0 {
		return TableMapping{}, &parsererror.MappingError{Field: field + ".column_mapping", Reason: "missing or empty"}
	}
	headers := rt.Header
	if len(headers) == 0 {
		headers = st.Header
	}
	present := make(map[string]bool, len(st.Header))
	for _, h := range st.Header {
		present[textutils.CollapseSpaces(h)] = true
	}

	tm := TableMapping{
		TableID: *rt.TableID,
		Page:    st.Page,
		Header:  append([]string(nil), headers...),
		Columns: make(map[string]models.CanonicalField, len(rt.Mapping)),
	}
	hasDate, hasAmount := false, false
	for name, role := range rt.Mapping {
		f, ok := models.ParseCanonicalField(strings.ToLower(strings.TrimSpace(role)))
		if !ok {
			return TableMapping{}, &parsererror.MappingError{Field: field + ".column_mapping", Reason: fmt.Sprintf("unknown role %q", role)}
		}
		if !present[textutils.CollapseSpaces(name)] {
			return TableMapping{}, &parsererror.MappingError{Field: field + ".column_mapping", Reason: fmt.Sprintf("column %q not in table header", name)}
		}
		tm.Columns[textutils.CollapseSpaces(name)] = f
		hasDate = hasDate || f == models.FieldDate
		hasAmount = hasAmount || (f.IsAmountField() && f != models.FieldBalance)
	}
	if !hasDate || !hasAmount {
		return TableMapping{}, &parsererror.MappingError{Field: field + ".column_mapping", Reason: "needs a date and an amount column"}
	}
	return tm, nil
}

// Apply turns the mapped tables into frames. The first matrix row is the
// header the mapping refers to; unmapped columns keep their header text.
// Tables absent from the mapping are ignored.
func Apply(tables []models.ReconstructedTable, mapping ColumnMapping) []models.Frame {
	byID := make(map[int]TableMapping, len(mapping.Tables))
	for _, tm := range mapping.Tables {
		byID[tm.TableID] = tm
	}

	var frames []models.Frame
	for _, t := range tables {
		tm, ok := byID[t.TableID]
		if !ok || t.RowCount() == 0 {
			continue
		}
		width := t.ColumnCount()
		m := models.NewCanonicalColumnMap()
		names := make([]string, width)
		used := make(map[models.CanonicalField]bool)
		for i := 0; i < width; i++ {
			raw := ""
			if i < len(t.Matrix[0]) {
				raw = textutils.CollapseSpaces(t.Matrix[0][i])
			}
			f, mapped := tm.Columns[raw]
			if mapped && f != models.FieldOther && !used[f] {
				used[f] = true
				m.Fields[raw] = f
				names[i] = string(f)
				continue
			}
			names[i] = raw
		}
		m.Columns = header.UniqueNames(names)
		frame := header.ToFrame(t, header.Resolution{Map: m, HasHeaderRow: true})
		if frame.Len() > 0 {
			frames = append(frames, frame)
		}
	}
	return frames
}
