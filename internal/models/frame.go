package models

import "strings"

// Cell is a frame value. Valid is false for null padding introduced by merging.
type Cell struct {
	Value string `json:"value"`
	Valid bool   `json:"valid"`
}

// Text returns a valid cell holding s.
func Text(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// Null returns a null cell.
func Null() Cell {
	return Cell{}
}

// FrameRow is one data row plus the table region it came from.
type FrameRow struct {
	Cells   []Cell `json:"cells"`
	TableID int    `json:"table_id"`
	Page    int    `json:"page"`
}

// Joined returns the non-null cell values joined with a single space.
func (r FrameRow) Joined() string {
	parts := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c.Valid && c.Value != "" {
			parts = append(parts, c.Value)
		}
	}
	return strings.Join(parts, " ")
}

// IsBlank reports whether every cell is null or whitespace.
func (r FrameRow) IsBlank() bool {
	for _, c := range r.Cells {
		if c.Valid && strings.TrimSpace(c.Value) != "" {
			return false
		}
	}
	return true
}

// Frame is a header-resolved table: named columns over data rows.
type Frame struct {
	Columns []string   `json:"columns"`
	Rows    []FrameRow `json:"rows"`
}

// ColumnIndex returns the position of the named column, or -1.
func (f Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the frame has a column with the given name.
func (f Frame) HasColumn(name string) bool {
	return f.ColumnIndex(name) >= 0
}

// Value returns the cell at (row, column name), or a null cell when absent.
func (f Frame) Value(row int, column string) Cell {
	idx := f.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(f.Rows) || idx >= len(f.Rows[row].Cells) {
		return Null()
	}
	return f.Rows[row].Cells[idx]
}

// ColumnValues returns the valid values of a column, in row order.
func (f Frame) ColumnValues(column string) []string {
	idx := f.ColumnIndex(column)
	if idx < 0 {
		return nil
	}
	var values []string
	for _, r := range f.Rows {
		if idx < len(r.Cells) && r.Cells[idx].Valid {
			values = append(values, r.Cells[idx].Value)
		}
	}
	return values
}

// Len returns the number of data rows.
func (f Frame) Len() int {
	return len(f.Rows)
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := Frame{
		Columns: append([]string(nil), f.Columns...),
		Rows:    make([]FrameRow, len(f.Rows)),
	}
	for i, r := range f.Rows {
		out.Rows[i] = FrameRow{
			Cells:   append([]Cell(nil), r.Cells...),
			TableID: r.TableID,
			Page:    r.Page,
		}
	}
	return out
}
