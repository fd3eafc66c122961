package gossip

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"github.com/rs/zerolog/log"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/engine"
	"github.com/saiputravu-labs/meridian/internal/metrics"
)

const (
	// gossipPullInterval is the period of the ticker on which Run pulls
	// every peer.
	gossipPullInterval = 80 * time.Millisecond
	updateQueueDepth   = 512
)

// update is one locally-published snapshot awaiting broadcast.
type update struct {
	symbol string
	bids   []book.LevelSnapshot
	asks   []book.LevelSnapshot
}

// Synchronizer is the gossip peer for one engine node: it maintains the
// global BBO view, performs the at-most-once order/fill reroute RPCs, and
// implements engine.PeerRouter so a MatchEngine can consult it without
// knowing anything about gossip mechanics.
type Synchronizer struct {
	selfAddr string
	source   BookSource
	peers    []PeerStub
	metrics  *metrics.Collector

	mu          sync.RWMutex
	bbo         map[string]*symbolBBO // symbol -> global best bid/ask
	knownOrders map[string]bool       // order ids this engine has rerouted to a peer
	peerMaxSeq  map[string]map[string]uint64 // peer addr -> symbol -> highest seq observed

	updates chan update
	seq     uint64
	seqMu   sync.Mutex
}

// New constructs a Synchronizer for the engine at selfAddr, gossiping with
// peers, and consulting source for what to publish and where to deliver
// rerouted work. m may be nil in tests that don't care about counters.
func New(selfAddr string, source BookSource, peers []PeerStub, m *metrics.Collector) *Synchronizer {
	return &Synchronizer{
		selfAddr:    selfAddr,
		source:      source,
		peers:       peers,
		metrics:     m,
		bbo:         make(map[string]*symbolBBO),
		knownOrders: make(map[string]bool),
		peerMaxSeq:  make(map[string]map[string]uint64),
		updates:     make(chan update, updateQueueDepth),
	}
}

// SetPeers wires the peer stub table after construction, mirroring
// engine.MatchEngine.SetRouter for the same two-phase bootstrap: construct
// every node's engine and synchronizer first, then wire the
// cross-references once every stub exists.
func (s *Synchronizer) SetPeers(peers []PeerStub) {
	s.peers = peers
}

// Run is the gossip loop: each local publish is broadcast as soon as it is
// dequeued, and independently every peer is pulled on each
// gossipPullInterval tick (the global BBO is refolded on every lookup). It
// runs under t until t.Dying() fires, the same tomb.v2 lifecycle idiom used
// elsewhere for long-running workers.
func (s *Synchronizer) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(gossipPullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case u := <-s.updates:
			s.broadcast(u)
		case <-ticker.C:
			s.pullPeers()
		}
	}
}

// PublishUpdate filters zero-volume levels, enqueues the snapshot for
// broadcast, advances the local sequence number, and synchronously
// recomputes this engine's own contribution to the global BBO. Matching
// engines call this after every state change, so it must never block on
// RPCs.
func (s *Synchronizer) PublishUpdate(symbol string, bids, asks []book.LevelSnapshot) {
	bids = dropZeroVolume(bids)
	asks = dropZeroVolume(asks)

	s.seqMu.Lock()
	s.seq++
	seq := s.seq
	s.seqMu.Unlock()

	select {
	case s.updates <- update{symbol: symbol, bids: bids, asks: asks}:
	default:
		log.Error().Str("symbol", symbol).Msg("gossip update queue full, dropping oldest publish")
		<-s.updates
		s.updates <- update{symbol: symbol, bids: bids, asks: asks}
	}

	s.applyLocalContribution(symbol, seq)
}

func dropZeroVolume(levels []book.LevelSnapshot) []book.LevelSnapshot {
	out := make([]book.LevelSnapshot, 0, len(levels))
	for _, l := range levels {
		if l.TotalRemaining > 0 {
			out = append(out, l)
		}
	}
	return out
}

// applyLocalContribution folds this engine's own best bid/ask into the
// global BBO map, under self's address.
func (s *Synchronizer) applyLocalContribution(symbol string, seq uint64) {
	bid, ask, bidOK, askOK := s.source.LocalBestPrices(symbol)

	if s.metrics != nil {
		bidF, _ := decimal.NewFromString(bid)
		askF, _ := decimal.NewFromString(ask)
		s.metrics.SetLocalBest(symbol, bidF.InexactFloat64(), askF.InexactFloat64())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.bboFor(symbol)
	if bidOK {
		setQuote(entry.bids, s.selfAddr, bid, seq)
	} else {
		delete(entry.bids, s.selfAddr)
	}
	if askOK {
		setQuote(entry.asks, s.selfAddr, ask, seq)
	} else {
		delete(entry.asks, s.selfAddr)
	}
	_, bidPrice, _ := entry.best(true)
	_, askPrice, _ := entry.best(false)
	log.Debug().Str("symbol", symbol).Str("bid", bidPrice).Str("ask", askPrice).Msg("global best prices")
}

// broadcast pushes one snapshot to every peer in parallel, logging
// per-peer failures without retrying — gossip updates are idempotent
// snapshots, so a dropped push is recovered by the next publish or the
// pull side.
func (s *Synchronizer) broadcast(u update) {
	var wg sync.WaitGroup
	for _, p := range s.peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.SyncOrderBook(s.selfAddr, u.symbol, u.bids, u.asks, s.currentSeq()); err != nil {
				log.Error().Err(err).Str("peer", p.Addr()).Str("symbol", u.symbol).Msg("SyncOrderBook push failed")
				if s.metrics != nil {
					s.metrics.GossipBroadcastErrors.Inc()
				}
			}
		}()
	}
	wg.Wait()
}

func (s *Synchronizer) currentSeq() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.seq
}

// pullPeers fetches GetOrderBook from every peer and recomputes that
// peer's contribution wherever its sequence number has advanced.
func (s *Synchronizer) pullPeers() {
	for _, sym := range s.source.Symbols() {
		for _, p := range s.peers {
			snap, err := p.GetOrderBook(sym)
			if err != nil {
				log.Error().Err(err).Str("peer", p.Addr()).Str("symbol", sym).Msg("GetOrderBook pull failed")
				if s.metrics != nil {
					s.metrics.GossipPullErrors.Inc()
				}
				continue
			}
			if !s.advancesPeerSeq(p.Addr(), sym, snap.Sequence) {
				continue
			}
			s.applyPeerContribution(p.Addr(), sym, snap)
		}
	}
}

func (s *Synchronizer) advancesPeerSeq(peerAddr, symbol string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySymbol, ok := s.peerMaxSeq[peerAddr]
	if !ok {
		bySymbol = make(map[string]uint64)
		s.peerMaxSeq[peerAddr] = bySymbol
	}
	if seq <= bySymbol[symbol] {
		return false
	}
	bySymbol[symbol] = seq
	return true
}

// applyPeerContribution folds peerAddr's advertised best bid/ask for symbol
// into the per-engine quote table. A side peerAddr no longer quotes (an
// empty snapshot side) clears that engine's prior entry on that side,
// rather than leaving a stale quote in the fold forever.
func (s *Synchronizer) applyPeerContribution(peerAddr, symbol string, snap engine.BookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.bboFor(symbol)
	if len(snap.Bids) > 0 {
		setQuote(entry.bids, peerAddr, snap.Bids[0].Price.String(), snap.Sequence)
	} else {
		delete(entry.bids, peerAddr)
	}
	if len(snap.Asks) > 0 {
		setQuote(entry.asks, peerAddr, snap.Asks[0].Price.String(), snap.Sequence)
	} else {
		delete(entry.asks, peerAddr)
	}
}

// bboFor returns the symbolBBO for symbol, creating it if absent. Callers
// must hold s.mu.
func (s *Synchronizer) bboFor(symbol string) *symbolBBO {
	entry, ok := s.bbo[symbol]
	if !ok {
		entry = &symbolBBO{bids: make(map[string]peerQuote), asks: make(map[string]peerQuote)}
		s.bbo[symbol] = entry
	}
	return entry
}

// LookupBBOEngine implements engine.PeerRouter: given order, return the
// peer advertising the best executable price for its side, or self if no
// peer is strictly better.
func (s *Synchronizer) LookupBBOEngine(order *common.Order) (string, error) {
	wantBid := order.Side == common.Sell

	s.mu.RLock()
	entry, ok := s.bbo[order.Symbol]
	var globalEngine, globalPrice string
	var globalOK bool
	if ok {
		globalEngine, globalPrice, globalOK = entry.best(wantBid)
	}
	s.mu.RUnlock()
	if !ok {
		return s.selfAddr, nil
	}

	localBid, localAsk, localBidOK, localAskOK := s.source.LocalBestPrices(order.Symbol)

	if order.Side == common.Buy {
		return s.betterSide(globalEngine, globalPrice, globalOK, localAsk, localAskOK, order.Price, false), nil
	}
	return s.betterSide(globalEngine, globalPrice, globalOK, localBid, localBidOK, order.Price, true), nil
}

// betterSide decides whether the global quote improves on both the local
// best and the order's own limit. higherIsBetter is true when evaluating
// bids (a SELL looking for the highest bid).
func (s *Synchronizer) betterSide(globalEngine, globalPriceStr string, globalOK bool, localPrice string, localOK bool, limit decimal.Decimal, higherIsBetter bool) string {
	if !globalOK || globalEngine == s.selfAddr {
		return s.selfAddr
	}
	globalPrice, err := decimal.NewFromString(globalPriceStr)
	if err != nil {
		return s.selfAddr
	}

	limitOK := true
	if higherIsBetter {
		limitOK = globalPrice.GreaterThanOrEqual(limit)
	} else {
		limitOK = globalPrice.LessThanOrEqual(limit)
	}
	if !limitOK {
		return s.selfAddr
	}

	if !localOK {
		return globalEngine
	}
	local, err := decimal.NewFromString(localPrice)
	if err != nil {
		return globalEngine
	}
	improves := globalPrice.GreaterThan(local)
	if !higherIsBetter {
		improves = globalPrice.LessThan(local)
	}
	if improves {
		return globalEngine
	}
	return s.selfAddr
}

// RouteOrder implements engine.PeerRouter: a single unary SubmitOrder RPC
// to the peer at dstAddr. The order keeps its original origin_engine_addr,
// so the peer processes it locally unconditionally.
func (s *Synchronizer) RouteOrder(order *common.Order, dstAddr string) error {
	peer := s.peerAt(dstAddr)
	if peer == nil {
		return engine.ErrRouteFailed
	}

	s.mu.Lock()
	s.knownOrders[order.OrderID] = true
	s.mu.Unlock()

	return peer.SubmitOrder(order)
}

// RouteFill implements engine.PeerRouter: a unary DeliverRoutedFill RPC to
// the peer at dstAddr, the client's origin engine — targets
// origin_engine_addr only, never the matching engine.
func (s *Synchronizer) RouteFill(fill common.Fill, clientID string, dstAddr string) error {
	peer := s.peerAt(dstAddr)
	if peer == nil {
		return engine.ErrRouteFailed
	}
	return peer.DeliverRoutedFill(fill, clientID)
}

func (s *Synchronizer) peerAt(addr string) PeerStub {
	for _, p := range s.peers {
		if p.Addr() == addr {
			return p
		}
	}
	return nil
}

// SyncGlobalBestPrice implements the optional fast-path push: store
// engineAddr's advertised quote under that engine, tagged with the highest
// sequence number observed from it for symbol; the fold in symbolBBO.best
// then picks the price-better quote across engines. A push from an engine
// whose stored quote already carries that sequence number is ignored,
// whichever price is better.
func (s *Synchronizer) SyncGlobalBestPrice(symbol, bid, ask, engineAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.bboFor(symbol)
	seq := s.peerMaxSeq[engineAddr][symbol]
	if bid != "" {
		setQuote(entry.bids, engineAddr, bid, seq)
	}
	if ask != "" {
		setQuote(entry.asks, engineAddr, ask, seq)
	}
}

// HandleSyncOrderBook applies an inbound peer push immediately (in
// addition to the pull loop noticing it next cycle), so convergence under
// active trading does not wait a full pull interval.
func (s *Synchronizer) HandleSyncOrderBook(peerAddr, symbol string, bids, asks []book.LevelSnapshot, seq uint64) {
	if !s.advancesPeerSeq(peerAddr, symbol, seq) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.bboFor(symbol)
	if len(bids) > 0 {
		setQuote(entry.bids, peerAddr, bids[0].Price.String(), seq)
	} else {
		delete(entry.bids, peerAddr)
	}
	if len(asks) > 0 {
		setQuote(entry.asks, peerAddr, asks[0].Price.String(), seq)
	} else {
		delete(entry.asks, peerAddr)
	}
}

// KnownOrder reports whether this engine has rerouted orderID to a peer via
// RouteOrder. Orders arriving here from a peer are not recorded.
func (s *Synchronizer) KnownOrder(orderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.knownOrders[orderID]
}
