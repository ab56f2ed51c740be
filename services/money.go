package services

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundMoney rounds half to even at two decimals. Amounts are only rounded
// for presentation; stored totals stay unrounded.
func RoundMoney(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).RoundBank(2)
}

// WholeUnitRounding rounds a total to whole currency units and returns the
// amount to pay together with the rounding difference.
func WholeUnitRounding(total float64) (toPay, rounding decimal.Decimal) {
	rounded := RoundMoney(total)
	toPay = rounded.Round(0)
	return toPay, toPay.Sub(rounded)
}

// FormatAmount renders two decimals with a comma separator, "540,30".
func FormatAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// FormatQuantity renders kWh the same way as amounts.
func FormatQuantity(v float64) string {
	return FormatAmount(RoundMoney(v))
}
