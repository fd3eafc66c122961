// Package gossip implements the Synchronizer: inter-engine snapshot
// exchange, the per-symbol global BBO view, and the two at-most-once
// reroute RPCs. It depends on internal/engine for the BookSource
// capability; internal/engine depends only on the PeerRouter interface it
// declares itself (engine/types.go), never on this package — so the two
// are linked by interfaces without an import cycle.
package gossip

import (
	"github.com/shopspring/decimal"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/engine"
)

// BookSource is the capability a MatchEngine provides to the Synchronizer:
// what to gossip, and where to deliver a routed order or fill.
type BookSource interface {
	// Symbols lists every symbol this engine currently has a book for.
	Symbols() []string

	// LocalBestPrices reports the engine's own best bid/ask for symbol.
	LocalBestPrices(symbol string) (bid, ask string, bidOK, askOK bool)

	// GetOrderBook returns the local aggregated snapshot for symbol.
	GetOrderBook(symbol string) engine.BookSnapshot

	// DeliverRoutedFill hands a fill produced on a peer to a local client.
	DeliverRoutedFill(f common.Fill, clientID string)

	// SubmitOrder admits an order rerouted here from a peer.
	SubmitOrder(order *common.Order) (engine.SubmitResult, error)
}

// PeerStub is the RPC surface the Synchronizer needs against one peer
// engine — implemented by the transport package's client, stubbed in
// gossip's own tests.
type PeerStub interface {
	Addr() string
	SyncOrderBook(sourceAddr, symbol string, bids, asks []book.LevelSnapshot, seq uint64) error
	GetOrderBook(symbol string) (engine.BookSnapshot, error)
	SyncGlobalBestPrice(symbol, bid, ask, engineAddr string) error
	SubmitOrder(order *common.Order) error
	DeliverRoutedFill(f common.Fill, clientID string) error
}

// peerQuote is one engine's contribution to a symbol's global best bid or
// ask: a price plus the sequence number it was derived from.
type peerQuote struct {
	price    string // decimal.Decimal.String()
	sequence uint64
}

// symbolBBO holds every known engine's contribution to both sides of one
// symbol's global best-price view, keyed by engine address (the local
// engine's own contribution is stored under its own address like any
// peer's). The global best on each side is always recomputed as a fold
// over every stored quote — never cached as a single overwritable slot —
// so one engine's quote getting worse can never hide another engine's
// still-current, better quote.
type symbolBBO struct {
	bids map[string]peerQuote // engine addr -> quote
	asks map[string]peerQuote
}

// best folds every stored quote on one side down to a single winner: the
// highest price if wantBid, the lowest otherwise. ok is false if no engine
// has a quote on this side.
func (e *symbolBBO) best(wantBid bool) (engineAddr, price string, ok bool) {
	quotes := e.asks
	if wantBid {
		quotes = e.bids
	}
	var bestPrice decimal.Decimal
	for addr, q := range quotes {
		cand, err := decimal.NewFromString(q.price)
		if err != nil {
			continue
		}
		if !ok {
			ok, bestPrice, engineAddr, price = true, cand, addr, q.price
			continue
		}
		better := cand.GreaterThan(bestPrice)
		if !wantBid {
			better = cand.LessThan(bestPrice)
		}
		if better {
			bestPrice, engineAddr, price = cand, addr, q.price
		}
	}
	return engineAddr, price, ok
}

// setQuote stores engineAddr's contribution to one side of a symbol's BBO,
// keyed by engine so no engine's entry can ever overwrite another's. seq is
// a per-engine clock: a quote with seq no greater than the engine's
// existing entry is stale and ignored, matching the idempotent-receipt
// rule applied everywhere else in the gossip path.
func setQuote(quotes map[string]peerQuote, engineAddr, price string, seq uint64) {
	if _, err := decimal.NewFromString(price); err != nil {
		return
	}
	if existing, ok := quotes[engineAddr]; ok && seq <= existing.sequence {
		return
	}
	quotes[engineAddr] = peerQuote{price: price, sequence: seq}
}
