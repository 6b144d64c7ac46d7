package core

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts pounds to pence, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(pence int64) decimal.Decimal {
	return decimal.New(pence, -2)
}

// SumMinorUnits accumulates in integer pence so long sums never drift.
func SumMinorUnits(amounts []int64) int64 {
	var total int64
	for _, a := range amounts {
		total += a
	}
	return total
}
