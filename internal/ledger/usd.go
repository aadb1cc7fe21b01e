package ledger

import "github.com/shopspring/decimal"

var microFactor = decimal.NewFromInt(1_000_000)

// UsdToMicros converts a USD amount to integer micro-USD for the
// transfer boundary. Decimal arithmetic avoids float drift on amounts
// like 84.15.
func UsdToMicros(usd float64) int64 {
	return decimal.NewFromFloat(usd).Mul(microFactor).Round(0).IntPart()
}

// MicrosToUsd converts integer micro-USD back to a float USD amount.
func MicrosToUsd(micros int64) float64 {
	f, _ := decimal.NewFromInt(micros).Div(microFactor).Float64()
	return f
}
