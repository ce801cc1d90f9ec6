package store

import "github.com/shopspring/decimal"

func decimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
