package book

import (
	"github.com/shopspring/decimal"

	"github.com/saiputravu-labs/meridian/internal/common"
)

// PriceLevel holds every resting order at one price, in strict arrival
// (FIFO) order. A level with zero orders is never retained in a book — it
// is deleted as soon as its last order is evicted.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

// TotalRemaining sums the remaining quantity of every resting order at this
// level, used for the aggregated gossip snapshot.
func (l *PriceLevel) TotalRemaining() uint64 {
	var total uint64
	for _, o := range l.Orders {
		total += o.RemainingQuantity
	}
	return total
}

// evictFront drops resting orders from the head of the level whose
// remaining quantity has reached zero, preserving FIFO order for whatever
// remains.
func (l *PriceLevel) evictFront() {
	i := 0
	for i < len(l.Orders) && l.Orders[i].RemainingQuantity == 0 {
		i++
	}
	if i > 0 {
		l.Orders = l.Orders[i:]
	}
}

// removeByID evicts a single resting order by id, wherever it sits in the
// FIFO sequence — used by CancelOrder. Reports whether it was found.
func (l *PriceLevel) removeByID(orderID string) bool {
	for i, o := range l.Orders {
		if o.OrderID == orderID {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return true
		}
	}
	return false
}
