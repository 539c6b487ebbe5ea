package institution

import (
	"os"
	"path/filepath"
	"testing"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(t *testing.T, code string) Profile {
	t.Helper()
	for _, p := range DefaultProfiles() {
		if p.Code == code {
			return p
		}
	}
	t.Fatalf("no profile %s", code)
	return Profile{}
}

func TestDefaultProfiles(t *testing.T) {
	profiles := DefaultProfiles()
	codes := make([]string, len(profiles))
	for i, p := range profiles {
		codes[i] = p.Code
	}
	assert.Equal(t, []string{"KUDA", "OPAY", "GTBANK", "ZENITH", "ACCESS", "UBA", "FCMB"}, codes)
	assert.Contains(t, profiles[0].Boilerplate, "opening balance")
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "institutions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`institutions:
  - code: kuda
    name: Kuda MFB
    active: false
  - code: MONIEPOINT
    name: Moniepoint
    keywords: [MONIEPOINT]
`), 0o600))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 8)
	assert.Equal(t, "KUDA", profiles[0].Code)
	assert.Equal(t, "Kuda MFB", profiles[0].Name)
	assert.False(t, profiles[0].Active)
	assert.Equal(t, "MONIEPOINT", profiles[7].Code)

	_, err = LoadProfiles(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("institutions: [\n"), 0o600))
	_, err = LoadProfiles(bad)
	assert.Error(t, err)

	profiles, err = LoadProfiles("")
	require.NoError(t, err)
	assert.Len(t, profiles, 7)
}

func TestDetector(t *testing.T) {
	d := NewDetector(DefaultProfiles(), 0, logging.NewMockLogger())
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"kuda letterhead", []string{"Statement of account", "KUDA MICROFINANCE BANK"}, "KUDA"},
		{"case insensitive", []string{"guaranty trust bank plc"}, "GTBANK"},
		{"opay", []string{"OPay Digital Services Limited"}, "OPAY"},
		{"word boundary", []string{"Pubabank", "Access granted"}, CodeUnknown},
		{"empty", nil, CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.lines))
		})
	}

	limited := NewDetector(DefaultProfiles(), 2, nil)
	assert.Equal(t, CodeUnknown, limited.Detect([]string{"a", "b", "ZENITH BANK"}))
}

func TestIsCandidate(t *testing.T) {
	boilerplate := profile(t, "KUDA").Boilerplate
	tests := []struct {
		line string
		want bool
	}{
		{"12/02/2025 10:15:30 Airtime purchase ₦500.00 ₦4,500.00", true},
		{"2025 Feb 24 07:36:01 POS purchase -₦100.00", true},
		{"Opening balance 01/02/2025 ₦5,000.00", false},
		{"Page 1 of 3 12/02/2025 ₦1.00", false},
		{"12/02/2025 10:15:30 Airtime purchase 08012345678", false},
		{"Airtime purchase ₦500.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCandidate(tt.line, boilerplate))
		})
	}
}

func TestKudaParser(t *testing.T) {
	lines := []string{
		"Kuda Microfinance Bank Statement",
		"Account Number 2001234567 01/02/2025 ₦0.00",
		"12/02/2025 10:15:30 Airtime purchase 08012345678 ₦500.00 ₦4,500.00",
		"13/02/2025 09:00:00 Inward transfer from Ada ₦2,000.00 ₦6,500.00",
		"14/02/2025 11:11:11 Random note ₦10.00 ₦6,490.00",
		"Page 1 of 2 15/02/2025 ₦1.00",
	}
	frame := NewKudaParser(profile(t, "KUDA"), nil).Parse(lines)

	assert.Equal(t, Columns, frame.Columns)
	require.Equal(t, 2, frame.Len())

	assert.Equal(t, "12/02/2025 10:15:30", frame.Value(0, "date").Value)
	assert.Equal(t, "Airtime purchase 08012345678", frame.Value(0, "description").Value)
	assert.Equal(t, "500.00", frame.Value(0, "debit").Value)
	assert.Equal(t, "", frame.Value(0, "credit").Value)
	assert.Equal(t, "4500.00", frame.Value(0, "balance").Value)
	assert.Equal(t, "08012345678", frame.Value(0, "transaction_reference").Value)

	assert.Equal(t, "2000.00", frame.Value(1, "credit").Value)
	assert.Equal(t, "", frame.Value(1, "debit").Value)
}

func TestOPayParser(t *testing.T) {
	lines := []string{
		"OPay Digital Services Limited",
		"2025 Feb 24 07:36:01 Airtime MTN 08031234567 -₦100.00 ₦900.00",
		"2025 Feb 25 08:00:00 Transfer received from Ada TX1234567890 +₦2,000.00 ₦2,900.00",
		"2025 Feb 26 09:00:00 ₦50.00",
		"2025 Feb 27 10:00:00 Opay cashback ₦5.00",
	}
	frame := NewOPayParser(profile(t, "OPAY"), logging.NewMockLogger()).Parse(lines)
	require.Equal(t, 2, frame.Len())

	assert.Equal(t, "2025 Feb 24 07:36:01", frame.Value(0, "date").Value)
	assert.Equal(t, "Airtime MTN 08031234567", frame.Value(0, "description").Value)
	assert.Equal(t, "100.00", frame.Value(0, "debit").Value)
	assert.Equal(t, "900.00", frame.Value(0, "balance").Value)
	assert.Equal(t, "08031234567", frame.Value(0, "transaction_reference").Value)

	assert.Equal(t, "2000.00", frame.Value(1, "credit").Value)
	assert.Equal(t, "TX1234567890", frame.Value(1, "transaction_reference").Value)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(DefaultProfiles(), nil)
	assert.Equal(t, []string{"KUDA", "OPAY"}, r.Codes())

	p, ok := r.Get("kuda")
	require.True(t, ok)
	assert.Equal(t, "KUDA", p.Code())

	_, ok = r.Get("GTBANK")
	assert.False(t, ok)

	var _ Parser = (*OPayParser)(nil)
	frame := p.Parse(nil)
	assert.Equal(t, 0, frame.Len())
	assert.Equal(t, string(models.FieldDate), frame.Columns[0])
}
