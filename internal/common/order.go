// Package common holds the data types shared by every component of a
// matching-engine node: orders, fills, sides and statuses.
package common

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Side is a closed sum of the two trading directions. Branching on it is
// preferred over any form of virtual dispatch.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Status tracks an order's lifecycle. FILLED must always coincide with a
// zero RemainingQuantity; Order.ApplyFill sets FILLED exactly when the
// remainder reaches zero.
type Status uint8

const (
	StatusNew Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "NEW"
	}
}

// Order has an immutable identity and a mutable remainder. OriginEngineAddr
// is set once by the engine that first admits the order and must never be
// rewritten by any peer that later processes it.
type Order struct {
	OrderID          string
	ClientID         string
	OriginEngineAddr string
	Symbol           string
	Side             Side
	Price            decimal.Decimal
	Quantity         uint64
	Timestamp        time.Time

	RemainingQuantity uint64
	Status            Status
}

// Remaining reports whether the order still has quantity to match or rest.
func (o *Order) Remaining() bool {
	return o.RemainingQuantity > 0
}

// ApplyFill decrements the remaining quantity by qty and flips the status.
// qty must never exceed RemainingQuantity; callers (the book) guarantee this
// by construction via min(order.Remaining, resting.Remaining). An over-fill
// is an internal invariant violation and aborts the process.
func (o *Order) ApplyFill(qty uint64) {
	if qty > o.RemainingQuantity {
		log.Fatal().Str("order_id", o.OrderID).Uint64("qty", qty).Uint64("remaining", o.RemainingQuantity).
			Msg("fill exceeds remaining quantity")
	}
	o.RemainingQuantity -= qty
	if o.RemainingQuantity == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}
