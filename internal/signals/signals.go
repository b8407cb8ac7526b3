// Package signals maps alert signal labels to order quantities.
//
// The classifier is a pure static lookup: stronger-conviction box signals
// size up to 2 lots, everything else (including unknown or absent labels)
// falls back to the default quantity. It never fails.
package signals

// defaultQuantities is the built-in signal table from the alerting source.
var defaultQuantities = map[string]int{
	"G_BOX":   1, // regular bullish
	"R_BOX":   1, // regular bearish
	"2G_BOX":  2, // strong bullish
	"2R_BOX":  2, // strong bearish
	"1G_BOX":  1, // transition signals
	"1R_BOX":  1,
	"2GR_BOX": 1,
	"2RG_BOX": 1,
}

// Classifier resolves a signal label to an order quantity.
type Classifier struct {
	quantities map[string]int
	defaultQty int
}

// New builds a classifier from the built-in table merged with optional
// overrides. defaultQty is used for unknown or empty labels; values < 1 are
// clamped to 1.
func New(overrides map[string]int, defaultQty int) *Classifier {
	if defaultQty < 1 {
		defaultQty = 1
	}
	q := make(map[string]int, len(defaultQuantities)+len(overrides))
	for k, v := range defaultQuantities {
		q[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			q[k] = v
		}
	}
	return &Classifier{quantities: q, defaultQty: defaultQty}
}

// QuantityFor returns the quantity for a signal label. Total over all inputs.
func (c *Classifier) QuantityFor(signal string) int {
	if qty, ok := c.quantities[signal]; ok {
		return qty
	}
	return c.defaultQty
}
