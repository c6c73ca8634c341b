// Package pricing implements the bonding curve that maps a side's
// outstanding supply to its unit share price.
package pricing

import "math"

// Precision is the number of decimal places every monetary value is rounded
// to before being stored or sent on the wire.
const Precision = 6

// Curve is the process-wide bonding curve: price(s) = base + k*sqrt(s).
// It is a pure value type, safe for concurrent use without synchronization.
type Curve struct {
	Base float64
	K    float64
}

// Price returns the unit price at the given outstanding supply, rounded to
// Precision decimals. Negative supply is clamped to zero, so Price(0) and
// Price of any negative input both return Base exactly.
func (c Curve) Price(supply float64) float64 {
	if supply < 0 || math.IsNaN(supply) {
		supply = 0
	}
	return Round(c.Base + c.K*math.Sqrt(supply))
}

// Cost returns the total cost of buying shares at the unit price implied by
// the current supply.
func (c Curve) Cost(supply, shares float64) float64 {
	return Round(c.Price(supply) * shares)
}

// SharesForAmount converts a spend amount into a share count at the unit
// price implied by the current supply. It returns the share count and the
// unit price used. Zero shares are returned for a non-positive amount.
func (c Curve) SharesForAmount(amount, supply float64) (shares, unitPrice float64) {
	unitPrice = c.Price(supply)
	if amount <= 0 || unitPrice <= 0 {
		return 0, unitPrice
	}
	return Round(amount / unitPrice), unitPrice
}

// Round rounds v to Precision decimal places.
func Round(v float64) float64 {
	const shift = 1e6
	return math.Round(v*shift) / shift
}
