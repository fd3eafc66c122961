package book_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
)

func newOrder(id string, side common.Side, price float64, qty uint64) *common.Order {
	return &common.Order{
		OrderID:           id,
		ClientID:          id + "-client",
		OriginEngineAddr:  "engine-1",
		Symbol:            "X",
		Side:              side,
		Price:             decimal.NewFromFloat(price),
		Quantity:          qty,
		RemainingQuantity: qty,
		Timestamp:         time.Now(),
	}
}

// A single resting SELL, partially filled by a BUY at the same price.
func TestAddOrder_SimpleFill(t *testing.T) {
	b := book.NewOrderBook("X")

	_, _, err := b.AddOrder(newOrder("S1", common.Sell, 100.00, 10))
	require.NoError(t, err)

	buyIncoming, sellResting, err := b.AddOrder(newOrder("B1", common.Buy, 100.00, 4))
	require.NoError(t, err)

	require.Len(t, buyIncoming, 1)
	require.Len(t, sellResting, 1)
	assert.Equal(t, uint64(4), buyIncoming[0].Quantity)
	assert.True(t, decimal.NewFromFloat(100.00).Equal(buyIncoming[0].Price))
	assert.Equal(t, "B1-client", buyIncoming[0].BuyerID)
	assert.Equal(t, "S1-client", buyIncoming[0].SellerID)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(100.00).Equal(ask))

	bids, asks := b.Snapshot()
	assert.Empty(t, bids)
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(6), asks[0].TotalRemaining)
}

// Scenario 2: two resting SELLs at the same price, consumed in FIFO order.
func TestAddOrder_TimePriorityWithinLevel(t *testing.T) {
	b := book.NewOrderBook("X")

	_, _, err := b.AddOrder(newOrder("S1", common.Sell, 100, 5))
	require.NoError(t, err)
	_, _, err = b.AddOrder(newOrder("S2", common.Sell, 100, 5))
	require.NoError(t, err)

	buyIncoming, _, err := b.AddOrder(newOrder("B1", common.Buy, 100, 7))
	require.NoError(t, err)

	require.Len(t, buyIncoming, 2)
	assert.Equal(t, "S1", buyIncoming[0].OrderIDResting)
	assert.Equal(t, uint64(5), buyIncoming[0].Quantity)
	assert.Equal(t, "S2", buyIncoming[1].OrderIDResting)
	assert.Equal(t, uint64(2), buyIncoming[1].Quantity)

	_, asks := b.Snapshot()
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(3), asks[0].TotalRemaining)
}

func TestAddOrder_RejectsZeroQuantityAndNonPositivePrice(t *testing.T) {
	b := book.NewOrderBook("X")

	_, _, err := b.AddOrder(newOrder("O1", common.Buy, 100, 0))
	assert.ErrorIs(t, err, book.ErrInvalidOrder)

	_, _, err = b.AddOrder(newOrder("O2", common.Buy, 0, 10))
	assert.ErrorIs(t, err, book.ErrInvalidOrder)

	_, _, err = b.AddOrder(newOrder("O3", common.Buy, -5, 10))
	assert.ErrorIs(t, err, book.ErrInvalidOrder)
}

func TestAddOrder_CoercesStaleRemainingQuantity(t *testing.T) {
	b := book.NewOrderBook("X")

	o := newOrder("O1", common.Buy, 100, 10)
	o.RemainingQuantity = 3 // stale / forged remainder
	_, _, err := b.AddOrder(o)
	require.NoError(t, err)

	bids, _ := b.Snapshot()
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(10), bids[0].TotalRemaining)
}

// Book sanity: best bid strictly below best ask after every AddOrder return.
func TestAddOrder_NoLockedBookAfterReturn(t *testing.T) {
	b := book.NewOrderBook("X")

	_, _, err := b.AddOrder(newOrder("S1", common.Sell, 101, 10))
	require.NoError(t, err)
	_, _, err = b.AddOrder(newOrder("B1", common.Buy, 99, 10))
	require.NoError(t, err)

	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	require.True(t, bidOk)
	require.True(t, askOk)
	assert.True(t, bid.LessThan(ask))
}

// Conservation: filled quantity on both sides must match, and
// quantity-consumed totals 2x the sum of fill quantities.
func TestAddOrder_Conservation(t *testing.T) {
	b := book.NewOrderBook("X")

	orders := []*common.Order{
		newOrder("S1", common.Sell, 100, 5),
		newOrder("S2", common.Sell, 100, 5),
		newOrder("B1", common.Buy, 100, 7),
		newOrder("B2", common.Buy, 101, 3),
	}

	var totalFillQty uint64
	for _, o := range orders {
		incoming, _, err := b.AddOrder(o)
		require.NoError(t, err)
		for _, f := range incoming {
			totalFillQty += f.Quantity
		}
	}

	var consumed uint64
	for _, o := range orders {
		consumed += o.Quantity - o.RemainingQuantity
	}
	assert.Equal(t, 2*totalFillQty, consumed)
}

func TestCancelOrder_RemovesRestingOrder(t *testing.T) {
	b := book.NewOrderBook("X")

	o := newOrder("O1", common.Buy, 100, 5)
	_, _, err := b.AddOrder(o)
	require.NoError(t, err)

	assert.True(t, b.CancelOrder(o))

	_, _, err = b.AddOrder(newOrder("S1", common.Sell, 100, 5))
	require.NoError(t, err)

	bids, asks := b.Snapshot()
	assert.Empty(t, bids)
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(5), asks[0].TotalRemaining)
}
