package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MONEY
// =============================================================================

func TestMoney_QuantizeRoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2.345", "2.35"},
		{"2.344", "2.34"},
		{"-2.345", "-2.35"},
		{"59.9994", "60.00"},
		{"0.005", "0.01"},
		{"", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MustMoney(tt.in).Quantize().String())
		})
	}
}

func TestMoney_ZeroValueIsZero(t *testing.T) {
	var m Money
	assert.True(t, m.IsZero())
	assert.Equal(t, "0.00", m.String())
	assert.Equal(t, "5.00", m.Add(MoneyFromInt(5)).String())
}

func TestMoney_MaxMin(t *testing.T) {
	a, b := MustMoney("-3"), MustMoney("2")
	assert.Equal(t, "2.00", a.Max(b).String())
	assert.Equal(t, "-3.00", a.Min(b).String())
}

func TestMoney_JSON(t *testing.T) {
	out, err := json.Marshal(MustMoney("1234.5"))
	require.NoError(t, err)
	assert.Equal(t, `"1234.50"`, string(out))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`12.5`), &m))
	assert.Equal(t, "12.50", m.String())

	require.NoError(t, json.Unmarshal([]byte(`"99.99"`), &m))
	assert.Equal(t, "99.99", m.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.True(t, m.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &m))
}

func TestMoney_Scan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan("100.5"))
	assert.Equal(t, "100.50", m.String())

	require.NoError(t, m.Scan([]byte("7")))
	assert.Equal(t, "7.00", m.String())

	require.NoError(t, m.Scan(nil))
	assert.True(t, m.IsZero())

	err := m.Scan("not-a-number")
	assert.True(t, errors.Is(err, ErrCorruptRecord))

	err = m.Scan(true)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestMoney_ValueIsExactText(t *testing.T) {
	v, err := MustMoney("0.1").Add(MustMoney("0.2")).Value()
	require.NoError(t, err)
	assert.Equal(t, "0.3", v)
}

// =============================================================================
// ENUMS
// =============================================================================

func TestParsePaymentMode(t *testing.T) {
	tests := []struct {
		in   string
		want PaymentMode
	}{
		{"", ModeBank},
		{"bank", ModeBank},
		{"Bank Transfer", ModeBank},
		{"CHEQUE", ModeCheque},
		{"Cash", ModeCash},
		{"online", ModeOnline},
	}
	for _, tt := range tests {
		got, err := ParsePaymentMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParsePaymentMode("barter")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestPaymentMode_Label(t *testing.T) {
	assert.Equal(t, "Bank Transfer", ModeBank.Label())
	assert.Equal(t, "custom", PaymentMode("custom").Label())
}

// =============================================================================
// DATES
// =============================================================================

func TestDate_JSONAndSQL(t *testing.T) {
	out, err := json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	out, err = json.Marshal(NewDate(2025, time.March, 7))
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-07"`, string(out))

	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var d Date
	require.NoError(t, d.Scan("2025-03-07T00:00:00Z"))
	assert.Equal(t, "2025-03-07", d.String())

	require.NoError(t, d.Scan(time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)))
	assert.Equal(t, "2025-01-02", d.String())
}

func TestDate_Comparison(t *testing.T) {
	early := MustDate("2025-03-31")
	late := MustDate("2025-04-01")

	assert.True(t, early.Before(late))
	assert.True(t, late.After(early))
	assert.False(t, early.After(early))
	assert.True(t, early.Equal(DateOf(time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC))))
	assert.Equal(t, "Mar 2025", early.MonthLabel())
}

func TestDateRange_Contains(t *testing.T) {
	r := DateRange{From: MustDate("2025-01-01"), To: MustDate("2025-01-31")}

	assert.True(t, r.Contains(MustDate("2025-01-01")), "From is inclusive")
	assert.True(t, r.Contains(MustDate("2025-01-31")), "To is inclusive")
	assert.False(t, r.Contains(MustDate("2025-02-01")))
	assert.False(t, r.Contains(Date{}), "unset date is outside a bounded range")

	assert.True(t, DateRange{}.Contains(Date{}))
	assert.True(t, DateRange{From: MustDate("2025-01-01")}.Contains(MustDate("2030-01-01")))
}

func TestFinancialYear(t *testing.T) {
	r, err := FinancialYear("2024-2025")
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", r.From.String())
	assert.Equal(t, "2025-03-31", r.To.String())

	_, err = FinancialYear("2024-2026")
	assert.Error(t, err)
	_, err = FinancialYear("FY24")
	assert.Error(t, err)

	assert.Equal(t, "2024-2025", FinancialYearOf(MustDate("2025-03-31")))
	assert.Equal(t, "2025-2026", FinancialYearOf(MustDate("2025-04-01")))
}
