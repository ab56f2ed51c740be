package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundMoney_HalfEven(t *testing.T) {
	assert.Equal(t, "2.34", RoundMoney(2.345).StringFixed(2))
	assert.Equal(t, "2.36", RoundMoney(2.355).StringFixed(2))
	assert.Equal(t, "540.30", RoundMoney(540.3).StringFixed(2))
}

func TestWholeUnitRounding(t *testing.T) {
	toPay, rounding := WholeUnitRounding(540.30)
	assert.Equal(t, "540,00", FormatAmount(toPay))
	assert.Equal(t, "-0,30", FormatAmount(rounding))

	toPay, rounding = WholeUnitRounding(99.5)
	assert.Equal(t, "100,00", FormatAmount(toPay))
	assert.Equal(t, "0,50", FormatAmount(rounding))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "77,76", FormatQuantity(77.76))
	assert.Equal(t, "3,00", FormatQuantity(3))
}
