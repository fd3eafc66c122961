package engine

import (
	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
)

// PeerRouter is the capability the Synchronizer provides to a MatchEngine:
// BBO lookup for the routing decision, and the two at-most-once reroute
// RPCs. Modeling the engine<->synchronizer relationship as two components
// linked by interfaces, rather than a direct cyclic pointer pair, keeps
// each package importable and testable on its own.
type PeerRouter interface {
	// LookupBBOEngine returns the address of the peer engine currently
	// advertising the best executable price for order, or self (the local
	// engine address) if no peer is strictly better.
	LookupBBOEngine(order *common.Order) (engineAddr string, err error)

	// RouteOrder forwards order to the peer at dstAddr, once.
	RouteOrder(order *common.Order, dstAddr string) error

	// RouteFill delivers fill, addressed to clientID, to the peer at
	// dstAddr — that peer's origin engine for clientID.
	RouteFill(fill common.Fill, clientID string, dstAddr string) error

	// PublishUpdate hands the current aggregated snapshot of symbol to the
	// synchronizer. Matching engines call this after every state change
	// (order added, matched, cancelled) for best-price accuracy; it must
	// never block on RPCs.
	PublishUpdate(symbol string, bids, asks []book.LevelSnapshot)
}

// SubmitResult is what SubmitOrder reports back to the caller.
type SubmitResult struct {
	OrderID string
	Routed  bool // true if the order was forwarded to a peer instead of matched locally
	Fills   []common.Fill
}

// RegisterResult is what RegisterClient reports back to the caller.
type RegisterResult struct {
	Successful bool
	EngineAddr string
}

// CancelResult is what CancelOrder reports back to the caller.
type CancelResult int

const (
	CancelSuccess CancelResult = iota
	CancelNotFound
	CancelAlreadyCancelled
)

// BookSnapshot is the per-symbol view returned by GetOrderBook — an RPC, so
// it must be a plain aggregate, never a live *book.OrderBook.
type BookSnapshot struct {
	Symbol   string
	Sequence uint64
	Bids     []book.LevelSnapshot
	Asks     []book.LevelSnapshot
}
