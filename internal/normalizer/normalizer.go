// Package normalizer turns header-resolved frames into canonical transaction rows.
package normalizer

import (
	"fmt"
	"strings"

	"banklytik/statement-normalizer/internal/currencyutils"
	"banklytik/statement-normalizer/internal/daterepair"
	"banklytik/statement-normalizer/internal/datevalidation"
	"banklytik/statement-normalizer/internal/inference"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
	"banklytik/statement-normalizer/internal/textutils"

	"github.com/shopspring/decimal"
)

// Normalizer maps frames onto TransactionRows and runs the date chain on each row:
// repair, parse, validate, then contextual inference per table and page.
type Normalizer struct {
	engine    *daterepair.Engine
	validator *datevalidation.Validator
	resolver  *inference.Resolver
	logger    logging.Logger
}

// New creates a Normalizer. A nil resolver disables inference.
func New(engine *daterepair.Engine, validator *datevalidation.Validator, resolver *inference.Resolver, logger logging.Logger) *Normalizer {
	return &Normalizer{
		engine:    engine,
		validator: validator,
		resolver:  resolver,
		logger:    logging.OrDefault(logger),
	}
}

// layout records where each canonical field sits in a frame.
type layout struct {
	date        int
	valueDate   int
	description int
	debit       int
	credit      int
	debitCredit int
	amount      int
	balance     int
	channel     int
	ref         int
	extra       []int
}

func newLayout(f models.Frame) layout {
	l := layout{
		date:        f.ColumnIndex(string(models.FieldDate)),
		valueDate:   f.ColumnIndex(string(models.FieldValueDate)),
		description: f.ColumnIndex(string(models.FieldDescription)),
		debit:       f.ColumnIndex(string(models.FieldDebit)),
		credit:      f.ColumnIndex(string(models.FieldCredit)),
		debitCredit: f.ColumnIndex(string(models.FieldDebitCredit)),
		amount:      f.ColumnIndex(string(models.FieldAmount)),
		balance:     f.ColumnIndex(string(models.FieldBalance)),
		channel:     f.ColumnIndex(string(models.FieldChannel)),
		ref:         f.ColumnIndex(string(models.FieldTransactionReference)),
	}
	for i, name := range f.Columns {
		if _, ok := models.ParseCanonicalField(name); !ok {
			l.extra = append(l.extra, i)
		}
	}
	return l
}

func cell(row models.FrameRow, idx int) string {
	if idx < 0 || idx >= len(row.Cells) || !row.Cells[idx].Valid {
		return ""
	}
	return textutils.CollapseSpaces(row.Cells[idx].Value)
}

// Normalize converts every row of the frame. A row without any monetary value
// is dropped unless its date parses; a row whose conversion panics is skipped.
func (n *Normalizer) Normalize(frame models.Frame) []models.TransactionRow {
	l := newLayout(frame)
	rows := make([]models.TransactionRow, 0, frame.Len())
	for i, fr := range frame.Rows {
		row, keep, err := n.safeRow(l, fr)
		if err != nil {
			n.logger.WithError(err).Error("Skipping row that failed to normalize",
				logging.F(logging.FieldRow, i),
				logging.F(logging.FieldTableID, fr.TableID))
			continue
		}
		if keep {
			rows = append(rows, row)
		}
	}

	inferred := 0
	if n.resolver != nil {
		rows, inferred = n.resolver.ApplyToRows(rows)
	}
	for i := range rows {
		if rows[i].Date == nil {
			rows[i].RowIssues.Add(models.RowIssueInvalidDate)
		}
	}

	n.logger.Debug("Normalized frame",
		logging.F(logging.FieldCount, len(rows)),
		logging.F("inferred", inferred))
	return rows
}

func (n *Normalizer) safeRow(l layout, fr models.FrameRow) (row models.TransactionRow, keep bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = parsererror.Recover("normalize row", r)
			keep = false
		}
	}()
	row, keep = n.row(l, fr)
	return row, keep, nil
}

func (n *Normalizer) row(l layout, fr models.FrameRow) (models.TransactionRow, bool) {
	row := models.TransactionRow{
		RawDate:   cell(fr, l.date),
		RowIssues: models.NewIssueSet(),
		TableID:   fr.TableID,
		Page:      fr.Page,
	}

	row.Description = cell(fr, l.description)
	if l.description < 0 {
		parts := make([]string, 0, len(l.extra))
		for _, idx := range l.extra {
			if v := cell(fr, idx); v != "" {
				parts = append(parts, v)
			}
		}
		row.Description = strings.Join(parts, " ")
	}

	hasMoney := n.amounts(&row, l, fr)
	if !hasMoney && !n.parses(row.RawDate) {
		return row, false
	}

	res := n.engine.Process(row.RawDate)
	row.DateValidation = n.validator.Validate(datevalidation.Input{
		Raw:         row.RawDate,
		Repaired:    res.Repaired,
		Parsed:      res.Parsed,
		Corrections: res.Corrections,
		Strategy:    res.Strategy,
	})
	if p := row.DateValidation.Parsed; p != nil {
		d := *p
		row.Date = &d
	}

	if raw := cell(fr, l.valueDate); raw != "" {
		repaired, _ := n.engine.Repair(raw)
		if outcome := n.engine.Parse(repaired); outcome.Time != nil {
			row.ValueDate = outcome.Time
		} else {
			row.RowIssues.Add(models.RowIssueInvalidValueDate)
		}
	}

	row.Channel = channelFor(cell(fr, l.channel), row.Description)
	if row.Channel == models.ChannelEmpty {
		row.RowIssues.Add(models.RowIssueMissingChannel)
	}

	row.TransactionReference = cell(fr, l.ref)
	if row.TransactionReference == "" {
		row.TransactionReference = textutils.ExtractReference(row.Description)
	}
	return row, true
}

// parses reports whether raw is a usable date on its own. Letterheads and
// continuation lines fail here without reaching the failure recorder.
func (n *Normalizer) parses(raw string) bool {
	if raw == "" {
		return false
	}
	repaired, _ := n.engine.Repair(raw)
	return n.engine.Parse(repaired).Time != nil
}

// amounts fills debit, credit and balance. It reports whether the row carries
// any monetary value at all.
func (n *Normalizer) amounts(row *models.TransactionRow, l layout, fr models.FrameRow) bool {
	hasMoney := false

	parseSide := func(idx int) decimal.Decimal {
		raw := cell(fr, idx)
		if currencyutils.IsBlankAmount(raw) {
			return decimal.Zero
		}
		amount, _, err := currencyutils.ParseSignedAmount(raw)
		if err != nil {
			row.RowIssues.Add(models.RowIssueInvalidAmount)
			return decimal.Zero
		}
		hasMoney = true
		return amount
	}
	row.Debit = parseSide(l.debit)
	row.Credit = parseSide(l.credit)

	if row.Debit.IsZero() && row.Credit.IsZero() {
		for _, idx := range []int{l.debitCredit, l.amount} {
			raw := cell(fr, idx)
			if currencyutils.IsBlankAmount(raw) {
				continue
			}
			debit, credit, err := SplitSigned(raw)
			if err != nil {
				row.RowIssues.Add(models.RowIssueInvalidAmount)
				continue
			}
			row.Debit, row.Credit = debit, credit
			hasMoney = true
			break
		}
	}
	if !row.Debit.IsZero() && !row.Credit.IsZero() {
		row.RowIssues.Add(models.RowIssueTwoSidedAmount)
	}

	if raw := cell(fr, l.balance); !currencyutils.IsBlankAmount(raw) {
		balance, err := currencyutils.ParseAmount(raw)
		if err != nil {
			row.RowIssues.Add(models.RowIssueInvalidBalance)
		} else {
			row.Balance = balance
			hasMoney = true
		}
	}
	return hasMoney
}

// SplitSigned splits a combined debit/credit value on its sign: a leading "-",
// parentheses or a DR suffix make it a debit, anything else a credit.
func SplitSigned(raw string) (debit, credit decimal.Decimal, err error) {
	amount, sign, err := currencyutils.ParseSignedAmount(raw)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("combined amount: %w", err)
	}
	if sign == currencyutils.SignDebit {
		return amount, decimal.Zero, nil
	}
	return decimal.Zero, amount, nil
}

func channelFor(channelCell, description string) models.Channel {
	if channelCell != "" {
		if ch := textutils.NormalizeChannel(channelCell); ch != models.ChannelOther && ch != models.ChannelEmpty {
			return ch
		}
	}
	if ch := textutils.ExtractChannel(description); ch != models.ChannelEmpty {
		return ch
	}
	if channelCell != "" {
		return models.ChannelOther
	}
	return models.ChannelEmpty
}
