package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceAtZeroSupplyIsBase(t *testing.T) {
	c := Curve{Base: 0.10, K: 0.05}
	assert.Equal(t, 0.10, c.Price(0))
}

func TestPriceClampsNegativeSupply(t *testing.T) {
	c := Curve{Base: 0.10, K: 0.05}
	assert.Equal(t, c.Price(0), c.Price(-50))
}

func TestPriceIsMonotone(t *testing.T) {
	c := Curve{Base: 0.10, K: 0.05}
	supplies := []float64{0, 0.5, 1, 2, 10, 100, 1000, 12345.678, 1e9}
	for i := 1; i < len(supplies); i++ {
		lo := c.Price(supplies[i-1])
		hi := c.Price(supplies[i])
		if hi < lo {
			t.Fatalf("price(%v)=%v < price(%v)=%v", supplies[i], hi, supplies[i-1], lo)
		}
	}
}

func TestPriceRoundedToSixDecimals(t *testing.T) {
	c := Curve{Base: 0.1, K: 0.05}
	p := c.Price(2) // 0.1 + 0.05*sqrt(2) = 0.17071067...
	assert.Equal(t, 0.170711, p)
}

func TestCost(t *testing.T) {
	c := Curve{Base: 0.10, K: 0.05}
	assert.Equal(t, 1.0, c.Cost(0, 10))
}

func TestSharesForAmount(t *testing.T) {
	c := Curve{Base: 0.10, K: 0.05}

	shares, unit := c.SharesForAmount(5, 0)
	assert.Equal(t, 0.10, unit)
	assert.Equal(t, 50.0, shares)

	// Round trip: buying those shares at the same supply costs the amount.
	assert.InDelta(t, 5.0, c.Cost(0, shares), 1e-6)
}

func TestSharesForAmountNonPositive(t *testing.T) {
	c := Curve{Base: 0.10, K: 0.05}
	shares, _ := c.SharesForAmount(0, 10)
	assert.Zero(t, shares)
	shares, _ = c.SharesForAmount(-3, 10)
	assert.Zero(t, shares)
}
