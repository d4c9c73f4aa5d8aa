package main

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

var decimalTen = decimal.NewFromInt(10)

// randomAmount returns a positive amount between 1.00 and 500.00.
func randomAmount() decimal.Decimal {
	return decimal.New(int64(100+rand.Intn(49901)), -2)
}
