// Package grid rebuilds dense tables from positioned OCR fragments.
package grid

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
)

// columnBreak splits a plain text line into cells: tabs or runs of two or more spaces.
var columnBreak = regexp.MustCompile(`\t+|\s{2,}`)

// Reconstructor turns OCR cells (or, failing that, text lines) into tables.
type Reconstructor struct {
	logger     logging.Logger
	minColumns int
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithMinColumns pads pseudo-table rows to at least n cells.
func WithMinColumns(n int) Option {
	return func(r *Reconstructor) {
		if n > 0 {
			r.minColumns = n
		}
	}
}

// NewReconstructor creates a Reconstructor.
func NewReconstructor(logger logging.Logger, opts ...Option) *Reconstructor {
	r := &Reconstructor{logger: logging.OrDefault(logger)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type regionKey struct {
	tableID int
	page    int
}

// Reconstruct groups cells by table region and returns one dense table per region,
// ordered by (page, table id). Without any cells it falls back to LinesToTable.
// A malformed region is skipped; its siblings are still returned.
func (r *Reconstructor) Reconstruct(doc models.OCRDocument) []models.ReconstructedTable {
	if len(doc.Cells) == 0 {
		return r.LinesToTable(doc.Lines)
	}

	regions := make(map[regionKey][]models.RawCell)
	var keys []regionKey
	for _, c := range doc.Cells {
		k := regionKey{tableID: c.TableID, page: c.Page}
		if _, ok := regions[k]; !ok {
			keys = append(keys, k)
		}
		regions[k] = append(regions[k], c)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].page != keys[j].page {
			return keys[i].page < keys[j].page
		}
		return keys[i].tableID < keys[j].tableID
	})

	tables := make([]models.ReconstructedTable, 0, len(keys))
	for _, k := range keys {
		table, err := buildTable(k, regions[k])
		if err != nil {
			r.logger.WithError(err).Warn("Skipping malformed table region",
				logging.F(logging.FieldTableID, k.tableID),
				logging.F(logging.FieldPage, k.page))
			continue
		}
		if table.RowCount() == 0 {
			r.logger.Debug("Table region has no content",
				logging.F(logging.FieldTableID, k.tableID),
				logging.F(logging.FieldPage, k.page))
			continue
		}
		tables = append(tables, table)
	}

	r.logger.Debug("Reconstructed tables from cells",
		logging.F(logging.FieldCount, len(tables)))
	return tables
}

// buildTable places cells by rank of their distinct row and column indices, so the
// matrix is bounded by the cell count whatever indices the OCR reported.
func buildTable(k regionKey, cells []models.RawCell) (models.ReconstructedTable, error) {
	type pos struct{ row, col int }
	sparse := make(map[pos]string, len(cells))
	rowSeen := make(map[int]bool)
	colSeen := make(map[int]bool)
	for _, c := range cells {
		if c.Row < 1 || c.Col < 1 {
			return models.ReconstructedTable{}, &parsererror.StructuralError{
				TableID: k.tableID,
				Page:    k.page,
				Reason:  fmt.Sprintf("cell has invalid position (%d, %d)", c.Row, c.Col),
				Err:     parsererror.ErrMalformedRegion,
			}
		}
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		p := pos{c.Row, c.Col}
		if prev, ok := sparse[p]; ok {
			sparse[p] = prev + " " + text
		} else {
			sparse[p] = text
		}
		rowSeen[c.Row] = true
		colSeen[c.Col] = true
	}

	rowRank := rank(rowSeen)
	colRank := rank(colSeen)
	matrix := make([][]string, len(rowRank))
	for i := range matrix {
		matrix[i] = make([]string, len(colRank))
	}
	for p, text := range sparse {
		matrix[rowRank[p.row]][colRank[p.col]] = text
	}

	return models.ReconstructedTable{
		TableID: k.tableID,
		Page:    k.page,
		Matrix:  Compact(matrix),
	}, nil
}

// rank maps each index to its position among the sorted distinct indices.
func rank(seen map[int]bool) map[int]int {
	indices := make([]int, 0, len(seen))
	for i := range seen {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	ranks := make(map[int]int, len(indices))
	for r, i := range indices {
		ranks[i] = r
	}
	return ranks
}

// Compact drops rows that are empty across all columns and columns that are
// empty across all rows.
func Compact(matrix [][]string) [][]string {
	width := 0
	for _, row := range matrix {
		if len(row) > width {
			width = len(row)
		}
	}

	keepCol := make([]bool, width)
	var rows [][]string
	for _, row := range matrix {
		empty := true
		for j, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				keepCol[j] = true
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		compacted := make([]string, 0, width)
		for j := 0; j < width; j++ {
			if !keepCol[j] {
				continue
			}
			if j < len(row) {
				compacted = append(compacted, row[j])
			} else {
				compacted = append(compacted, "")
			}
		}
		out = append(out, compacted)
	}
	return out
}

// SplitLine splits a text line on tabs or runs of two or more spaces.
func SplitLine(line string) []string {
	line = strings.TrimSpace(strings.ReplaceAll(line, "\u00a0", " "))
	if line == "" {
		return nil
	}
	parts := columnBreak.Split(line, -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// LinesToTable builds one pseudo-table per page from plain text lines.
// Table ids are negative page numbers so they never collide with OCR region ids.
func (r *Reconstructor) LinesToTable(lines []models.TextLine) []models.ReconstructedTable {
	byPage := make(map[int][][]string)
	var pages []int
	for _, l := range lines {
		cells := SplitLine(l.Text)
		if len(cells) == 0 {
			continue
		}
		if _, ok := byPage[l.Page]; !ok {
			pages = append(pages, l.Page)
		}
		byPage[l.Page] = append(byPage[l.Page], cells)
	}
	sort.Ints(pages)

	tables := make([]models.ReconstructedTable, 0, len(pages))
	for _, page := range pages {
		rows := byPage[page]
		width := r.minColumns
		for _, row := range rows {
			if len(row) > width {
				width = len(row)
			}
		}
		matrix := make([][]string, len(rows))
		for i, row := range rows {
			padded := make([]string, width)
			copy(padded, row)
			matrix[i] = padded
		}
		tables = append(tables, models.ReconstructedTable{
			TableID: -page,
			Page:    page,
			Matrix:  matrix,
		})
	}

	r.logger.Debug("Built pseudo-tables from text lines",
		logging.F(logging.FieldCount, len(tables)))
	return tables
}
