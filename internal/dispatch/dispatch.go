// Package dispatch translates normalized trade requests into Angel One
// orders. It ensures a live session, resolves the symbol token, builds the
// placeOrder payload, and returns a structured outcome. Broker and session
// failures are converted to failure outcomes, never raised.
package dispatch

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"webhook-relayv1/internal/instruments"
	"webhook-relayv1/internal/model"
	"webhook-relayv1/internal/session"
	"webhook-relayv1/pkg/smartconnect"
)

// Order constants fixed by the relay; everything else comes from Config.
const (
	orderVariety  = "NORMAL"
	orderExchange = "NSE"
	orderDuration = "DAY"
)

// Broker places orders with the brokerage. Injected for test doubles.
type Broker interface {
	PlaceOrder(params smartconnect.OrderParams) (string, error)
}

// Config carries the process-wide order defaults.
type Config struct {
	OrderType   string // MARKET or LIMIT
	ProductType string // INTRADAY, DELIVERY, CARRYFORWARD
	DefaultQty  int
}

// Dispatcher is the order-dispatch translator.
type Dispatcher struct {
	broker   Broker
	sessions *session.Manager
	resolver *instruments.Resolver
	cfg      Config

	// Optional hook, invoked after every dispatch attempt with the final
	// outcome (metrics, WS broadcast, alerting).
	OnOutcome func(ev model.OrderEvent)
}

// New creates a dispatcher.
func New(b Broker, sm *session.Manager, res *instruments.Resolver, cfg Config) *Dispatcher {
	if cfg.OrderType == "" {
		cfg.OrderType = "MARKET"
	}
	if cfg.ProductType == "" {
		cfg.ProductType = "INTRADAY"
	}
	if cfg.DefaultQty < 1 {
		cfg.DefaultQty = 1
	}
	return &Dispatcher{broker: b, sessions: sm, resolver: res, cfg: cfg}
}

// PlaceOrder runs the full dispatch sequence for one trade request and
// returns the outcome. The broker order endpoint is never contacted when
// login or symbol resolution fails.
//
// Quirk kept from the original relay: any action other than BUY is coerced
// to SELL here. The HTTP boundary separately rejects non-BUY/SELL actions,
// so this path is reachable only via /test and direct callers.
func (d *Dispatcher) PlaceOrder(req model.TradeRequest) model.OrderOutcome {
	if !d.sessions.Ensure() {
		return d.finish(req, model.OrderOutcome{Success: false, Message: "Login failed"})
	}

	token, ok := d.resolver.Resolve(req.Symbol)
	if !ok {
		return d.finish(req, model.OrderOutcome{
			Success: false,
			Message: fmt.Sprintf("Symbol token not found for %s", req.Symbol),
		})
	}

	qty := req.Quantity
	if qty <= 0 {
		qty = d.cfg.DefaultQty
	}

	side := model.ActionSell
	if strings.ToUpper(req.Action) == model.ActionBuy {
		side = model.ActionBuy
	}

	params := smartconnect.OrderParams{
		Variety:         orderVariety,
		TradingSymbol:   req.Symbol,
		SymbolToken:     token,
		TransactionType: side,
		Exchange:        orderExchange,
		OrderType:       d.cfg.OrderType,
		ProductType:     d.cfg.ProductType,
		Duration:        orderDuration,
		Quantity:        strconv.Itoa(qty),
	}
	if d.cfg.OrderType == "LIMIT" && req.Price > 0 {
		params.Price = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}

	orderID, err := d.broker.PlaceOrder(params)
	if err != nil {
		log.Printf("[dispatch] order placement failed: signal=%s symbol=%s action=%s err=%v",
			req.Signal, req.Symbol, side, err)
		return d.finishQty(req, qty, model.OrderOutcome{
			Success: false,
			Message: fmt.Sprintf("Order failed: %v", err),
		})
	}

	log.Printf("[dispatch] order placed: id=%s %s %d %s", orderID, side, qty, req.Symbol)
	return d.finishQty(req, qty, model.OrderOutcome{
		Success: true,
		Message: fmt.Sprintf("Order placed: %s %d %s", side, qty, req.Symbol),
		OrderID: orderID,
	})
}

func (d *Dispatcher) finish(req model.TradeRequest, out model.OrderOutcome) model.OrderOutcome {
	return d.finishQty(req, req.Quantity, out)
}

func (d *Dispatcher) finishQty(req model.TradeRequest, qty int, out model.OrderOutcome) model.OrderOutcome {
	if d.OnOutcome != nil {
		d.OnOutcome(model.OrderEvent{
			TS:      time.Now().UTC(),
			Signal:  req.Signal,
			Action:  req.Action,
			Symbol:  req.Symbol,
			Qty:     qty,
			Outcome: out,
		})
	}
	return out
}
