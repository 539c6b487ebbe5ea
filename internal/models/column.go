package models

// CanonicalField is one of the fixed transaction attributes every layout maps onto.
type CanonicalField string

const (
	FieldDate                 CanonicalField = "date"
	FieldValueDate            CanonicalField = "value_date"
	FieldDescription          CanonicalField = "description"
	FieldDebit                CanonicalField = "debit"
	FieldCredit               CanonicalField = "credit"
	FieldDebitCredit          CanonicalField = "debit_credit"
	FieldBalance              CanonicalField = "balance"
	FieldChannel              CanonicalField = "channel"
	FieldTransactionReference CanonicalField = "transaction_reference"
	FieldAmount               CanonicalField = "amount"
	FieldOther                CanonicalField = "other"
)

// CanonicalFields lists every canonical field in a stable order.
var CanonicalFields = []CanonicalField{
	FieldDate,
	FieldValueDate,
	FieldDescription,
	FieldDebit,
	FieldCredit,
	FieldDebitCredit,
	FieldBalance,
	FieldChannel,
	FieldTransactionReference,
	FieldAmount,
	FieldOther,
}

// ParseCanonicalField converts a role name into a CanonicalField.
func ParseCanonicalField(s string) (CanonicalField, bool) {
	for _, f := range CanonicalFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// IsAmountField reports whether the field carries a monetary value.
func (f CanonicalField) IsAmountField() bool {
	switch f {
	case FieldDebit, FieldCredit, FieldDebitCredit, FieldAmount, FieldBalance:
		return true
	}
	return false
}

// CanonicalColumnMap maps raw header strings to canonical fields for one table.
// Columns holds the resulting column names in table order: the canonical name
// when a header was recognized, the raw header otherwise.
type CanonicalColumnMap struct {
	Fields  map[string]CanonicalField `json:"fields"`
	Columns []string                  `json:"columns"`
}

// NewCanonicalColumnMap returns an empty map ready for use.
func NewCanonicalColumnMap() CanonicalColumnMap {
	return CanonicalColumnMap{Fields: make(map[string]CanonicalField)}
}

// FieldFor returns the canonical field assigned to a raw header.
func (m CanonicalColumnMap) FieldFor(raw string) (CanonicalField, bool) {
	f, ok := m.Fields[raw]
	return f, ok
}

// MatchedFields returns the distinct canonical fields present in the map, excluding other.
func (m CanonicalColumnMap) MatchedFields() []CanonicalField {
	seen := make(map[CanonicalField]bool)
	var out []CanonicalField
	for _, name := range m.Columns {
		f, ok := ParseCanonicalField(name)
		if !ok || f == FieldOther || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
