package dateutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanDateString(t *testing.T) {
	assert.Equal(t, "12 Mar 2024", CleanDateString(" 12  Mar\t2024 "))
	assert.Equal(t, "", CleanDateString("   "))
}

func TestDaysInMonthAndClamp(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, 28, DaysInMonth(2025, time.February))
	assert.Equal(t, 31, DaysInMonth(2025, time.December))

	assert.Equal(t, 28, ClampDay(2025, time.February, 31))
	assert.Equal(t, 30, ClampDay(2025, time.April, 31))
	assert.Equal(t, 1, ClampDay(2025, time.April, 0))
	assert.Equal(t, 15, ClampDay(2025, time.April, 15))
}

func TestMonthFromName(t *testing.T) {
	tests := []struct {
		in   string
		want time.Month
		ok   bool
	}{
		{"Jan", time.January, true},
		{"february", time.February, true},
		{"SEPT", time.September, true},
		{"Dec.", time.December, true},
		{"Foo", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, ok := MonthFromName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestIncompleteFragments(t *testing.T) {
	m, y, ok := ParseMonthYear("Feb 2025")
	require.True(t, ok)
	assert.Equal(t, time.February, m)
	assert.Equal(t, 2025, y)

	_, _, ok = ParseMonthYear("Foo 2025")
	assert.False(t, ok)

	d, y, ok := ParseDayYear("15 2025")
	require.True(t, ok)
	assert.Equal(t, 15, d)
	assert.Equal(t, 2025, y)

	assert.True(t, IsIncomplete("Feb 2025"))
	assert.True(t, IsIncomplete("15 2025"))
	assert.True(t, IsIncomplete("2025"))
	assert.True(t, IsIncomplete("2025-02"))
	assert.True(t, IsIncomplete("02/2025"))
	assert.True(t, IsNumericMonthYear(" 2025.2 "))
	assert.False(t, IsNumericMonthYear("2025-02-24"))
	assert.False(t, IsIncomplete("24/02/25"))
	assert.False(t, IsIncomplete("15 Feb 2025"))
	assert.False(t, IsIncomplete(""))
}

func TestFormatOptional(t *testing.T) {
	assert.Equal(t, "", FormatOptional(nil, ""))
	d := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-04", FormatOptional(&d, ""))
	assert.Equal(t, "04.03.2025", FormatOptional(&d, DateLayoutEuropean))
	assert.True(t, SameDay(d, d.Add(5*time.Hour)))
}
