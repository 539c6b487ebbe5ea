package institution

import (
	"regexp"
	"sort"
	"strings"

	"banklytik/statement-normalizer/internal/currencyutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/textutils"

	"github.com/shopspring/decimal"
)

// Parser extracts transactions from the text lines of one institution's statements.
// The returned frame uses canonical column names and raw cell text; amounts and
// dates are interpreted later by the row normalizer.
type Parser interface {
	Code() string
	Parse(lines []string) models.Frame
}

// Columns is the layout of every frame an institution parser returns.
var Columns = []string{
	string(models.FieldDate),
	string(models.FieldDescription),
	string(models.FieldDebit),
	string(models.FieldCredit),
	string(models.FieldBalance),
	string(models.FieldChannel),
	string(models.FieldTransactionReference),
}

const monthName = `(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[A-Za-z]*\.?`

var (
	dateLike = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
		regexp.MustCompile(`\d{4}\s+` + monthName + `\s+\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}\s*` + monthName + `\s*\d{4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	}
	clock      = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)
	moneyToken = regexp.MustCompile(`([+-])?\s*([₦$¥])?\s*(\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\d+\.\d{2}|\d+)`)
	pageFooter = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)
	phoneRef   = regexp.MustCompile(`\b\d{10,13}\b`)
	spaces     = regexp.MustCompile(`\s+`)
)

// HasDate reports whether line contains a date-like substring.
func HasDate(line string) bool {
	for _, re := range dateLike {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func stripDates(s string) string {
	for _, re := range dateLike {
		s = re.ReplaceAllString(s, " ")
	}
	return clock.ReplaceAllString(s, " ")
}

// money is one amount found in a line.
type money struct {
	amount decimal.Decimal
	sign   currencyutils.Sign
	span   [2]int
}

// findMoney returns the amounts in s. Bare integers only count when they carry
// a currency mark, so day numbers and account digits are not mistaken for money.
func findMoney(s string) []money {
	var out []money
	for _, m := range moneyToken.FindAllStringSubmatchIndex(s, -1) {
		number := s[m[6]:m[7]]
		hasMark := m[4] >= 0
		if !hasMark && !strings.ContainsAny(number, ".,") {
			continue
		}
		amount, _, err := currencyutils.ParseSignedAmount(number)
		if err != nil {
			continue
		}
		sign := currencyutils.SignNone
		if m[2] >= 0 {
			if s[m[2]:m[3]] == "-" {
				sign = currencyutils.SignDebit
			} else {
				sign = currencyutils.SignCredit
			}
		}
		out = append(out, money{amount: amount, sign: sign, span: [2]int{m[0], m[1]}})
	}
	return out
}

// HasAmount reports whether line contains an amount-like substring.
func HasAmount(line string) bool {
	return len(findMoney(stripDates(line))) > 0
}

// IsBoilerplate reports whether line holds a footer, letterhead or summary term.
func IsBoilerplate(line string, boilerplate []string) bool {
	if pageFooter.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, term := range boilerplate {
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// IsCandidate reports whether a line may hold a transaction: it needs a
// date-like and an amount-like substring and no boilerplate term.
func IsCandidate(line string, boilerplate []string) bool {
	return HasDate(line) && HasAmount(line) && !IsBoilerplate(line, boilerplate)
}

// entry is a transaction assembled from one or more lines.
type entry struct {
	date string
	text string
}

// toRow turns an entry into a frame row. The first amount is the movement and
// the second, when present, the running balance. Direction comes from an
// explicit sign, then from the credit keywords; anything else is a debit.
func toRow(e entry, creditKeywords []string, ref string) (models.FrameRow, bool) {
	body := stripDates(e.text)
	amounts := findMoney(body)
	if len(amounts) == 0 || amounts[0].amount.IsZero() {
		return models.FrameRow{}, false
	}

	description := body
	for i := len(amounts) - 1; i >= 0; i-- {
		span := amounts[i].span
		description = description[:span[0]] + " " + description[span[1]:]
	}
	description = textutils.CollapseSpaces(spaces.ReplaceAllString(description, " "))

	movement := amounts[0]
	isCredit := movement.sign == currencyutils.SignCredit
	if movement.sign == currencyutils.SignNone {
		isCredit = textutils.ContainsAny(e.text, creditKeywords...)
	}
	debit, credit := "", ""
	if isCredit {
		credit = movement.amount.StringFixed(2)
	} else {
		debit = movement.amount.StringFixed(2)
	}
	balance := ""
	if len(amounts) > 1 {
		balance = amounts[1].amount.StringFixed(2)
	}

	values := []string{e.date, description, debit, credit, balance, "", ref}
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		cells[i] = models.Text(v)
	}
	return models.FrameRow{Cells: cells}, true
}

// Registry maps institution codes to parsers.
type Registry struct {
	parsers map[string]Parser
	logger  logging.Logger
}

// NewRegistry creates parsers for the active profiles that have one.
func NewRegistry(profiles []Profile, logger logging.Logger) *Registry {
	r := &Registry{parsers: make(map[string]Parser), logger: logging.OrDefault(logger)}
	for _, p := range profiles {
		if !p.Active {
			continue
		}
		switch p.Code {
		case "KUDA":
			r.Register(NewKudaParser(p, r.logger))
		case "OPAY":
			r.Register(NewOPayParser(p, r.logger))
		default:
			r.logger.Debug("No parser for institution", logging.F(logging.FieldInstitution, p.Code))
		}
	}
	return r
}

// Register adds or replaces the parser for its code.
func (r *Registry) Register(p Parser) {
	r.parsers[NormalizeCode(p.Code())] = p
}

// Get returns the parser for code.
func (r *Registry) Get(code string) (Parser, bool) {
	p, ok := r.parsers[NormalizeCode(code)]
	return p, ok
}

// Codes lists the registered codes in lexical order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.parsers))
	for c := range r.parsers {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
