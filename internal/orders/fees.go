package orders

import (
	"github.com/shopspring/decimal"

	"ig-gateway/internal/symbols"
)

var (
	shareCommissionRate = decimal.NewFromFloat(0.001) // 0.1% of notional
	shareCommissionMin  = decimal.NewFromInt(10)
)

// CommissionFor computes the fee charged on an execution. Spread-priced
// classes (forex, crypto, indices, commodities) carry no commission; the
// cost sits in the spread. Share CFDs pay 0.1% of notional with a 10
// currency-unit minimum.
func CommissionFor(class symbols.AssetClass, price, qty float64) float64 {
	if symbols.SpreadPriced(class) {
		return 0
	}

	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)).Abs()
	fee := notional.Mul(shareCommissionRate)
	if fee.LessThan(shareCommissionMin) {
		fee = shareCommissionMin
	}
	f, _ := fee.Float64()
	return f
}
