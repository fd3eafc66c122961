// Package book implements the per-symbol price-level order book: strict
// price-time priority matching and fill generation.
package book

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/saiputravu-labs/meridian/internal/common"
)

var (
	ErrInvalidOrder = errors.New("INVALID_ORDER")
)

type priceLevels = btree.BTreeG[*PriceLevel]

// OrderBook holds the bid and ask ladders for a single symbol. It has no
// lock of its own: the owning MatchEngine holds its per-book mutex across
// every AddOrder/CancelOrder call, so the book is never observed mid-match
// by another goroutine.
type OrderBook struct {
	Symbol string

	Bids *priceLevels // sorted greatest price first
	Asks *priceLevels // sorted least price first
}

// NewOrderBook constructs an empty book for symbol. Books are created lazily
// by the engine on first order for a new symbol.
func NewOrderBook(symbol string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{Symbol: symbol, Bids: bids, Asks: asks}
}

// BestBid returns the highest non-empty bid price, if any.
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	lvl, ok := b.Bids.Min()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest non-empty ask price, if any.
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	lvl, ok := b.Asks.Min()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

// AddOrder matches an incoming order against the opposing side in strict
// price-time priority, then rests whatever remains. It returns the fill
// pair addressed to the incoming order's client and the fill pair addressed
// to each resting order's client.
//
// AddOrder is non-suspending: callers must hold the book's mutex (owned by
// the MatchEngine) for its whole duration.
func (b *OrderBook) AddOrder(order *common.Order) (incoming []common.Fill, resting []common.Fill, err error) {
	if order.Quantity == 0 || order.Price.Sign() <= 0 {
		return nil, nil, ErrInvalidOrder
	}
	if order.RemainingQuantity != order.Quantity {
		log.Warn().
			Str("order_id", order.OrderID).
			Msg("order arrived with remaining_quantity != quantity, coercing to fresh")
		order.RemainingQuantity = order.Quantity
	}
	order.Status = common.StatusNew

	switch order.Side {
	case common.Buy:
		incoming, resting = b.matchAgainst(order, b.Asks, func(levelPrice decimal.Decimal) bool {
			return levelPrice.LessThanOrEqual(order.Price)
		})
	case common.Sell:
		incoming, resting = b.matchAgainst(order, b.Bids, func(levelPrice decimal.Decimal) bool {
			return levelPrice.GreaterThanOrEqual(order.Price)
		})
	}

	if order.Remaining() {
		b.rest(order)
	}
	return incoming, resting, nil
}

// matchAgainst sweeps the opposing ladder (lowest-first for asks,
// highest-first for bids — guaranteed by the btree's ordering) while the
// incoming order still has quantity and the next level still crosses.
func (b *OrderBook) matchAgainst(order *common.Order, opposing *priceLevels, crosses func(decimal.Decimal) bool) (incoming []common.Fill, resting []common.Fill) {
	for order.Remaining() {
		level, ok := opposing.Min()
		if !ok || !crosses(level.Price) {
			break
		}

		for order.Remaining() && len(level.Orders) > 0 {
			restingOrder := level.Orders[0]
			fillQty := min(order.RemainingQuantity, restingOrder.RemainingQuantity)

			order.ApplyFill(fillQty)
			restingOrder.ApplyFill(fillQty)

			id := common.FillID(order.OrderID, restingOrder.OrderID)
			now := time.Now()
			buyer, seller := buyerSeller(order, restingOrder)

			incoming = append(incoming, common.Fill{
				FillID:            id,
				OrderIDIncoming:   order.OrderID,
				OrderIDResting:    restingOrder.OrderID,
				Symbol:            b.Symbol,
				Price:             level.Price,
				Quantity:          fillQty,
				Timestamp:         now,
				BuyerID:           buyer,
				SellerID:          seller,
				EngineDestination: order.OriginEngineAddr,
			})
			resting = append(resting, common.Fill{
				FillID:            id,
				OrderIDIncoming:   order.OrderID,
				OrderIDResting:    restingOrder.OrderID,
				Symbol:            b.Symbol,
				Price:             level.Price,
				Quantity:          fillQty,
				Timestamp:         now,
				BuyerID:           buyer,
				SellerID:          seller,
				EngineDestination: restingOrder.OriginEngineAddr,
			})

			level.evictFront()
		}

		if len(level.Orders) == 0 {
			opposing.Delete(level)
		}
	}
	return incoming, resting
}

func buyerSeller(incoming, resting *common.Order) (buyer, seller string) {
	if incoming.Side == common.Buy {
		return incoming.ClientID, resting.ClientID
	}
	return resting.ClientID, incoming.ClientID
}

// rest appends order to the tail of its side's price level, creating the
// level if necessary. Tail insertion preserves time priority.
func (b *OrderBook) rest(order *common.Order) {
	var levels *priceLevels
	switch order.Side {
	case common.Buy:
		levels = b.Bids
	case common.Sell:
		levels = b.Asks
	}

	if level, ok := levels.Get(&PriceLevel{Price: order.Price}); ok {
		level.Orders = append(level.Orders, order)
		return
	}
	levels.Set(&PriceLevel{Price: order.Price, Orders: []*common.Order{order}})
}

// CancelOrder removes order from whichever side/price it rests at. Reports
// whether the order was found resting in this book.
func (b *OrderBook) CancelOrder(order *common.Order) bool {
	var levels *priceLevels
	switch order.Side {
	case common.Buy:
		levels = b.Bids
	case common.Sell:
		levels = b.Asks
	}

	level, ok := levels.Get(&PriceLevel{Price: order.Price})
	if !ok {
		return false
	}
	found := level.removeByID(order.OrderID)
	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
	return found
}

// LevelSnapshot is the aggregated per-price view pushed/pulled for gossip.
type LevelSnapshot struct {
	Price          decimal.Decimal
	TotalRemaining uint64
	OrderCount     uint32
}

// Snapshot returns the aggregated bid and ask ladders, in priority order,
// for gossip publication and for the GetOrderBook RPC.
func (b *OrderBook) Snapshot() (bids, asks []LevelSnapshot) {
	b.Bids.Scan(func(l *PriceLevel) bool {
		bids = append(bids, LevelSnapshot{Price: l.Price, TotalRemaining: l.TotalRemaining(), OrderCount: uint32(len(l.Orders))})
		return true
	})
	b.Asks.Scan(func(l *PriceLevel) bool {
		asks = append(asks, LevelSnapshot{Price: l.Price, TotalRemaining: l.TotalRemaining(), OrderCount: uint32(len(l.Orders))})
		return true
	})
	return bids, asks
}
