package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/engine"
	"github.com/saiputravu-labs/meridian/internal/metrics"
)

// stubRouter is a minimal engine.PeerRouter for unit-testing MatchEngine in
// isolation from a real Synchronizer.
type stubRouter struct {
	selfAddr     string
	bestPeer     string
	routeOrderFn func(*common.Order, string) error
	routedFills  []common.Fill
}

func (r *stubRouter) LookupBBOEngine(order *common.Order) (string, error) {
	if r.bestPeer == "" {
		return r.selfAddr, nil
	}
	return r.bestPeer, nil
}

func (r *stubRouter) RouteOrder(order *common.Order, dstAddr string) error {
	if r.routeOrderFn != nil {
		return r.routeOrderFn(order, dstAddr)
	}
	return nil
}

func (r *stubRouter) RouteFill(fill common.Fill, clientID, dstAddr string) error {
	r.routedFills = append(r.routedFills, fill)
	return nil
}

func (r *stubRouter) PublishUpdate(symbol string, bids, asks []book.LevelSnapshot) {}

func newTestOrder(id, clientID, origin string, side common.Side, price float64, qty uint64) *common.Order {
	return &common.Order{
		OrderID:           id,
		ClientID:          clientID,
		OriginEngineAddr:  origin,
		Symbol:            "X",
		Side:              side,
		Price:             decimal.NewFromFloat(price),
		Quantity:          qty,
		RemainingQuantity: qty,
		Timestamp:         time.Now(),
	}
}

func newTestEngine(addr string, router engine.PeerRouter) *engine.MatchEngine {
	return engine.New(addr, "sekret", router, metrics.New(addr))
}

func TestRegisterClient_RejectsBadSecret(t *testing.T) {
	e := newTestEngine("engine-1", &stubRouter{selfAddr: "engine-1"})
	res := e.RegisterClient("alice", "wrong")
	assert.False(t, res.Successful)
}

func TestRegisterClient_IdempotentSecondCall(t *testing.T) {
	e := newTestEngine("engine-1", &stubRouter{selfAddr: "engine-1"})
	first := e.RegisterClient("alice", "sekret")
	second := e.RegisterClient("alice", "sekret")
	assert.True(t, first.Successful)
	assert.True(t, second.Successful)
}

func TestSubmitOrder_LocalMatchDeliversToBothClients(t *testing.T) {
	router := &stubRouter{selfAddr: "engine-1"}
	e := newTestEngine("engine-1", router)
	e.RegisterClient("seller", "sekret")
	e.RegisterClient("buyer", "sekret")

	_, err := e.SubmitOrder(newTestOrder("S1", "seller", "engine-1", common.Sell, 100, 10))
	require.NoError(t, err)

	result, err := e.SubmitOrder(newTestOrder("B1", "buyer", "engine-1", common.Buy, 100, 4))
	require.NoError(t, err)
	require.Len(t, result.Fills, 1)
	assert.Equal(t, uint64(4), result.Fills[0].Quantity)

	sellerQueue, ok := e.FillQueue("seller")
	require.True(t, ok)
	select {
	case f := <-sellerQueue:
		assert.Equal(t, uint64(4), f.Quantity)
	default:
		t.Fatal("expected a fill enqueued for the resting seller")
	}

	buyerQueue, ok := e.FillQueue("buyer")
	require.True(t, ok)
	select {
	case f := <-buyerQueue:
		assert.Equal(t, uint64(4), f.Quantity)
	default:
		t.Fatal("expected a fill enqueued for the incoming buyer")
	}
}

func TestSubmitOrder_RoutesOnceWhenPeerIsBetterAndSelfIsOrigin(t *testing.T) {
	routed := false
	router := &stubRouter{
		selfAddr: "engine-1",
		bestPeer: "engine-2",
		routeOrderFn: func(o *common.Order, dst string) error {
			routed = true
			assert.Equal(t, "engine-2", dst)
			return nil
		},
	}
	e := newTestEngine("engine-1", router)

	result, err := e.SubmitOrder(newTestOrder("B1", "buyer", "engine-1", common.Buy, 101, 5))
	require.NoError(t, err)
	assert.True(t, result.Routed)
	assert.True(t, routed)
	assert.Empty(t, result.Fills)
}

// Cycle prevention: an order whose origin is not this engine is processed
// locally unconditionally, even if the BBO view claims a peer is better.
func TestSubmitOrder_DoesNotRerouteWhenNotOrigin(t *testing.T) {
	router := &stubRouter{selfAddr: "engine-2", bestPeer: "engine-1"}
	e := newTestEngine("engine-2", router)

	result, err := e.SubmitOrder(newTestOrder("B1", "buyer", "engine-1", common.Buy, 101, 5))
	require.NoError(t, err)
	assert.False(t, result.Routed)
}

func TestSubmitOrder_DuplicateOrderIDIsIdempotent(t *testing.T) {
	router := &stubRouter{selfAddr: "engine-1"}
	e := newTestEngine("engine-1", router)
	e.RegisterClient("buyer", "sekret")

	first, err := e.SubmitOrder(newTestOrder("B1", "buyer", "engine-1", common.Buy, 100, 5))
	require.NoError(t, err)

	second, err := e.SubmitOrder(newTestOrder("B1", "buyer", "engine-1", common.Buy, 100, 5))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCancelOrder(t *testing.T) {
	router := &stubRouter{selfAddr: "engine-1"}
	e := newTestEngine("engine-1", router)
	e.RegisterClient("buyer", "sekret")

	_, err := e.SubmitOrder(newTestOrder("B1", "buyer", "engine-1", common.Buy, 100, 5))
	require.NoError(t, err)

	assert.Equal(t, engine.CancelSuccess, e.CancelOrder("B1"))
	assert.Equal(t, engine.CancelAlreadyCancelled, e.CancelOrder("B1"))
	assert.Equal(t, engine.CancelNotFound, e.CancelOrder("unknown"))

	// A SELL that would have crossed the cancelled BUY should now rest untouched.
	result, err := e.SubmitOrder(newTestOrder("S1", "seller", "engine-1", common.Sell, 100, 5))
	require.NoError(t, err)
	assert.Empty(t, result.Fills)
}

func TestDeliverRoutedFill_DropsForUnknownClient(t *testing.T) {
	router := &stubRouter{selfAddr: "engine-1"}
	e := newTestEngine("engine-1", router)

	f := common.Fill{FillID: "abc", Quantity: 1}
	e.DeliverRoutedFill(f, "ghost-client")
	// No panic, no delivery; nothing more directly observable without a
	// metrics scrape, which is exercised at the transport-integration layer.
}
