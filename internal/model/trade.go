// Package model defines the data types passed between the relay's components.
package model

import "time"

// Transaction sides accepted by the broker.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// TradeRequest is a normalized inbound trade alert. It is built fresh per
// webhook delivery and never persisted.
type TradeRequest struct {
	Symbol   string  `json:"symbol"`
	Action   string  `json:"action"`             // BUY or SELL
	Quantity int     `json:"quantity,omitempty"` // 0 = use configured default
	Price    float64 `json:"price,omitempty"`    // 0 = unset
	Signal   string  `json:"signal,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// OrderOutcome is the dispatcher's sole result value. An order either carries
// a broker order id or it does not; there is no partial success.
type OrderOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// OrderEvent is the envelope broadcast to /ws monitoring clients after every
// dispatch attempt.
type OrderEvent struct {
	TS      time.Time    `json:"ts"`
	Signal  string       `json:"signal,omitempty"`
	Action  string       `json:"action"`
	Symbol  string       `json:"symbol"`
	Qty     int          `json:"qty"`
	Outcome OrderOutcome `json:"outcome"`
}
