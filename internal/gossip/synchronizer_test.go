package gossip_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/engine"
	"github.com/saiputravu-labs/meridian/internal/gossip"
	"github.com/saiputravu-labs/meridian/internal/metrics"
)

// stubPeer is a minimal gossip.PeerStub backed by a real *engine.MatchEngine,
// so routed RPCs actually land on a second in-process engine instead of a
// mock recording calls.
type stubPeer struct {
	addr   string
	engine *engine.MatchEngine
	sync   *gossip.Synchronizer
}

func (p *stubPeer) Addr() string { return p.addr }

func (p *stubPeer) SyncOrderBook(sourceAddr, symbol string, bids, asks []book.LevelSnapshot, seq uint64) error {
	p.sync.HandleSyncOrderBook(sourceAddr, symbol, bids, asks, seq)
	return nil
}

func (p *stubPeer) GetOrderBook(symbol string) (engine.BookSnapshot, error) {
	return p.engine.GetOrderBook(symbol), nil
}

func (p *stubPeer) SyncGlobalBestPrice(symbol, bid, ask, engineAddr string) error {
	p.sync.SyncGlobalBestPrice(symbol, bid, ask, engineAddr)
	return nil
}

func (p *stubPeer) SubmitOrder(order *common.Order) error {
	_, err := p.engine.SubmitOrder(order)
	return err
}

func (p *stubPeer) DeliverRoutedFill(f common.Fill, clientID string) error {
	p.engine.DeliverRoutedFill(f, clientID)
	return nil
}

func newOrder(id, clientID, origin string, side common.Side, price float64, qty uint64) *common.Order {
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

// E2 has a resting SELL. A BUY arrives on E1 priced to cross only E2's
// ask. After the global BBO view learns of E2's ask, E1 routes the order
// once; the fill lands on E2 and the buyer-side fill is routed back to E1.
func TestSynchronizer_RoutesAcrossEnginesAndReturnsTheFill(t *testing.T) {
	var e1, e2 *engine.MatchEngine
	var s1, s2 *gossip.Synchronizer

	e1 = engine.New("e1", "sekret", nil, metrics.New("e1"))
	e2 = engine.New("e2", "sekret", nil, metrics.New("e2"))

	s1 = gossip.New("e1", e1, nil, metrics.New("e1"))
	s2 = gossip.New("e2", e2, nil, metrics.New("e2"))

	p2 := &stubPeer{addr: "e2", engine: e2, sync: s2}
	p1 := &stubPeer{addr: "e1", engine: e1, sync: s1}
	s1.SetPeers([]gossip.PeerStub{p2})
	s2.SetPeers([]gossip.PeerStub{p1})

	e1.SetRouter(s1)
	e2.SetRouter(s2)

	e2.RegisterClient("seller", "sekret")
	e1.RegisterClient("buyer", "sekret")

	_, err := e2.SubmitOrder(newOrder("S1", "seller", "e2", common.Sell, 100, 10))
	require.NoError(t, err)
	s2.PublishUpdate("X", e2.GetOrderBook("X").Bids, e2.GetOrderBook("X").Asks)

	snap, err := p2.GetOrderBook("X")
	require.NoError(t, err)
	s1.HandleSyncOrderBook("e2", "X", snap.Bids, snap.Asks, snap.Sequence)

	result, err := e1.SubmitOrder(newOrder("B1", "buyer", "e1", common.Buy, 101, 3))
	require.NoError(t, err)
	assert.True(t, result.Routed)

	sellerQueue, ok := e2.FillQueue("seller")
	require.True(t, ok)
	select {
	case f := <-sellerQueue:
		assert.Equal(t, uint64(3), f.Quantity)
	default:
		t.Fatal("expected a fill enqueued for the resting seller on e2")
	}

	buyerQueue, ok := e1.FillQueue("buyer")
	require.True(t, ok)
	select {
	case f := <-buyerQueue:
		assert.Equal(t, uint64(3), f.Quantity)
	default:
		t.Fatal("expected the buyer-side fill routed back to e1")
	}
}

func TestSynchronizer_LookupBBOEngine_ReturnsSelfWithNoBetterPeer(t *testing.T) {
	e := engine.New("e1", "sekret", nil, metrics.New("e1"))
	s := gossip.New("e1", e, nil, metrics.New("e1"))
	e.SetRouter(s)

	addr, err := s.LookupBBOEngine(newOrder("B1", "buyer", "e1", common.Buy, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, "e1", addr)
}

func TestSynchronizer_LookupBBOEngine_IgnoresPeerWorseThanLimit(t *testing.T) {
	e := engine.New("e1", "sekret", nil, metrics.New("e1"))
	s := gossip.New("e1", e, nil, metrics.New("e1"))
	e.SetRouter(s)

	s.SyncGlobalBestPrice("X", "", "99", "e2") // a SELL at 99 would not satisfy a BUY limited to 95
	addr, err := s.LookupBBOEngine(newOrder("B1", "buyer", "e1", common.Buy, 95, 5))
	require.NoError(t, err)
	assert.Equal(t, "e1", addr)
}

// With three engines, a losing peer's still-current quote must survive a
// winning peer's quote getting worse: A(self) sees B's bid at 100 beat
// C's bid at 90, so C's quote is correctly never stored as the winner.
// When B's bid later degrades to 80, the fold must recompute from every
// stored peer quote and promote C to 90, not get stuck on B's new, worse
// price.
func TestSynchronizer_GlobalBBO_RecoversBetterQuoteWhenWinnerDegrades(t *testing.T) {
	e := engine.New("e1", "sekret", nil, metrics.New("e1"))
	s := gossip.New("e1", e, nil, metrics.New("e1"))
	e.SetRouter(s)

	s.HandleSyncOrderBook("eB", "X", []book.LevelSnapshot{{Price: decimal.NewFromInt(100), TotalRemaining: 5}}, nil, 1)
	s.HandleSyncOrderBook("eC", "X", []book.LevelSnapshot{{Price: decimal.NewFromInt(90), TotalRemaining: 5}}, nil, 1)

	addr, err := s.LookupBBOEngine(newOrder("O1", "seller", "e1", common.Sell, 95, 5))
	require.NoError(t, err)
	assert.Equal(t, "eB", addr, "B's 100 should beat C's 90")

	s.HandleSyncOrderBook("eB", "X", []book.LevelSnapshot{{Price: decimal.NewFromInt(80), TotalRemaining: 5}}, nil, 2)

	addr, err = s.LookupBBOEngine(newOrder("O2", "seller", "e1", common.Sell, 85, 5))
	require.NoError(t, err)
	assert.Equal(t, "eC", addr, "C's still-current 90 must win once B degrades to 80")
}

func TestSynchronizer_PublishUpdate_DropsZeroVolumeLevels(t *testing.T) {
	e := engine.New("e1", "sekret", nil, metrics.New("e1"))
	s := gossip.New("e1", e, nil, metrics.New("e1"))
	s.PublishUpdate("X", nil, []book.LevelSnapshot{{Price: decimal.NewFromInt(100), TotalRemaining: 0, OrderCount: 0}})
	// No peers registered, so nothing to assert beyond: this must not panic
	// and must not block on an empty asks slice downstream.
}
