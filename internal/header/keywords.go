package header

import "banklytik/statement-normalizer/internal/models"

type keywordSet struct {
	field    models.CanonicalField
	keywords []string
}

// keywordSets holds the header hints for each canonical field. Keywords of three
// characters or fewer only match whole tokens.
var keywordSets = []keywordSet{
	{models.FieldDate, []string{"date", "trans", "time", "posted", "txn date", "transaction date", "trans date", "book date"}},
	{models.FieldValueDate, []string{"value date", "val date", "value dt", "effective date"}},
	{models.FieldDescription, []string{"desc", "details", "narration", "narrative", "remark", "particulars", "to from", "from to", "beneficiary", "memo"}},
	{models.FieldDebit, []string{"debit", "withdraw", "dr", "paid out", "money out", "spent", "outflow"}},
	{models.FieldCredit, []string{"credit", "deposit", "cr", "paid in", "received", "money in", "income", "inflow"}},
	{models.FieldBalance, []string{"balance", "bal"}},
	{models.FieldChannel, []string{"channel", "mode", "type", "category", "transaction type", "trans type"}},
	{models.FieldTransactionReference, []string{"ref", "reference", "id", "txn", "session", "transaction id", "cheque no", "check no"}},
	{models.FieldAmount, []string{"amount", "value", "amt"}},
}

// Tokens that, appearing together in one header, mark a combined debit/credit column.
var (
	debitRoots  = map[string]bool{"debit": true, "dr": true, "withdrawal": true, "withdrawals": true, "out": true}
	creditRoots = map[string]bool{"credit": true, "cr": true, "deposit": true, "deposits": true, "in": true}
)

// FallbackHeaders is the positional layout assumed for tables without a header row.
var FallbackHeaders = []string{
	"Trans. Time",
	"Value Date",
	"Description",
	"Debit/Credit",
	"Balance",
	"Channel",
	"Reference",
}

var fallbackFields = []models.CanonicalField{
	models.FieldDate,
	models.FieldValueDate,
	models.FieldDescription,
	models.FieldDebitCredit,
	models.FieldBalance,
	models.FieldChannel,
	models.FieldTransactionReference,
}
