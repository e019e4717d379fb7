package portfolio

import "github.com/shopspring/decimal"

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// round rounds half away from zero and converts for storage.
func round(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}

// pctChange is (cur/base - 1) * 100, or zero when base is zero.
func pctChange(cur, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return cur.Div(base).Sub(one).Mul(hundred)
}

// norm is 100 * cur / ref, or zero when ref is zero.
func norm(cur, ref decimal.Decimal) decimal.Decimal {
	if ref.IsZero() {
		return decimal.Zero
	}
	return hundred.Mul(cur).Div(ref)
}
