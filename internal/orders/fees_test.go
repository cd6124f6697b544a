package orders

import (
	"testing"

	"ig-gateway/internal/symbols"
)

func TestCommissionFor(t *testing.T) {
	tests := []struct {
		name  string
		class symbols.AssetClass
		price float64
		qty   float64
		want  float64
	}{
		{"forex is spread priced", symbols.ClassForex, 1.0850, 100000, 0},
		{"crypto is spread priced", symbols.ClassCrypto, 43000, 2, 0},
		{"index is spread priced", symbols.ClassIndex, 7500, 10, 0},
		{"commodity is spread priced", symbols.ClassCommodity, 1950, 5, 0},
		{"shares pay 0.1 percent", symbols.ClassShares, 400, 1000, 400},
		{"small share deal hits the minimum", symbols.ClassShares, 50, 100, 10},
		{"minimum dominates at the boundary", symbols.ClassShares, 100, 100, 10},
		{"short side charges the same", symbols.ClassShares, 400, -1000, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CommissionFor(tt.class, tt.price, tt.qty)
			if got != tt.want {
				t.Fatalf("CommissionFor(%s, %v, %v)=%v, expected %v", tt.class, tt.price, tt.qty, got, tt.want)
			}
		})
	}
}
