package ocr

import (
	"strings"

	"banklytik/statement-normalizer/internal/models"
)

// Block is the subset of a Textract document-analysis block this package reads.
type Block struct {
	ID            string         `json:"Id"`
	BlockType     string         `json:"BlockType"`
	Text          string         `json:"Text,omitempty"`
	Page          int            `json:"Page,omitempty"`
	RowIndex      int            `json:"RowIndex,omitempty"`
	ColumnIndex   int            `json:"ColumnIndex,omitempty"`
	Relationships []Relationship `json:"Relationships,omitempty"`
}

// Relationship links a block to other blocks by id.
type Relationship struct {
	Type string   `json:"Type"`
	IDs  []string `json:"Ids"`
}

// Block types used during resolution.
const (
	BlockTable = "TABLE"
	BlockCell  = "CELL"
	BlockWord  = "WORD"
	BlockLine  = "LINE"
)

func (b Block) children() []string {
	var ids []string
	for _, r := range b.Relationships {
		if r.Type == "CHILD" {
			ids = append(ids, r.IDs...)
		}
	}
	return ids
}

func pageOf(b Block, fallback int) int {
	if b.Page > 0 {
		return b.Page
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

// FromBlocks resolves Textract blocks into cells and lines. Tables are
// numbered from 1 in block order; a CELL takes its text from its WORD and LINE
// children. Cells no table claims belong to the table that precedes them.
func FromBlocks(blocks []Block) models.OCRDocument {
	byID := make(map[string]Block, len(blocks))
	for _, b := range blocks {
		if b.ID != "" {
			byID[b.ID] = b
		}
	}

	owner := make(map[string]int)
	tablePage := make(map[int]int)
	tableID := 0
	for _, b := range blocks {
		if b.BlockType != BlockTable {
			continue
		}
		tableID++
		tablePage[tableID] = pageOf(b, 0)
		for _, id := range b.children() {
			if _, claimed := owner[id]; !claimed {
				owner[id] = tableID
			}
		}
	}

	var doc models.OCRDocument
	current := 0
	for _, b := range blocks {
		switch b.BlockType {
		case BlockTable:
			current++
		case BlockCell:
			id, ok := owner[b.ID]
			if !ok {
				id = current
			}
			doc.Cells = append(doc.Cells, models.RawCell{
				TableID: id,
				Page:    pageOf(b, tablePage[id]),
				Row:     b.RowIndex,
				Col:     b.ColumnIndex,
				Text:    cellText(b, byID),
			})
		case BlockLine:
			if text := strings.TrimSpace(b.Text); text != "" {
				doc.Lines = append(doc.Lines, models.TextLine{Page: pageOf(b, 0), Text: text})
			}
		}
	}
	return doc
}

func cellText(cell Block, byID map[string]Block) string {
	var parts []string
	for _, id := range cell.children() {
		child, ok := byID[id]
		if !ok {
			continue
		}
		if child.BlockType == BlockWord || child.BlockType == BlockLine {
			if t := strings.TrimSpace(child.Text); t != "" {
				parts = append(parts, t)
			}
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(cell.Text)
	}
	return strings.Join(parts, " ")
}
