// Package engine implements the MatchEngine: order admission, the
// local-vs-route decision, fill fan-out into client queues, and the
// client->origin-engine routing table.
package engine

import (
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/metrics"
)

const fillQueueDepth = 256

var (
	ErrAuthFailed   = errors.New("AUTH_FAILED")
	ErrNotFound     = errors.New("NOT_FOUND")
	ErrRouteFailed  = errors.New("ROUTE_FAILED")
	ErrInvalidOrder = book.ErrInvalidOrder
)

type bookEntry struct {
	mu   sync.Mutex
	book *book.OrderBook
	seq  uint64
}

// MatchEngine owns every OrderBook for the symbols it has seen, the set of
// clients registered directly on it, their fill queues, and the client
// routing table used to return fills produced elsewhere.
type MatchEngine struct {
	Address      string
	sharedSecret string
	router       PeerRouter
	metrics      *metrics.Collector

	booksMu sync.Mutex
	books   map[string]*bookEntry

	ordersMu sync.Mutex
	orders   map[string]*common.Order  // order_id -> order, across local and routed-through orders
	results  map[string]SubmitResult   // order_id -> cached SubmitOrder result, for idempotent retries

	clientsMu sync.Mutex
	clients   map[string]bool               // locally-registered client ids
	queues    map[string]chan common.Fill   // client id -> fill queue
	routing   map[string]string             // client id -> origin engine address
}

// New constructs a MatchEngine bound to address, authenticating
// RegisterClient calls against sharedSecret and consulting router for the
// routing decision in SubmitOrder.
func New(address, sharedSecret string, router PeerRouter, m *metrics.Collector) *MatchEngine {
	return &MatchEngine{
		Address:      address,
		sharedSecret: sharedSecret,
		router:       router,
		metrics:      m,
		books:        make(map[string]*bookEntry),
		orders:       make(map[string]*common.Order),
		results:      make(map[string]SubmitResult),
		clients:      make(map[string]bool),
		queues:       make(map[string]chan common.Fill),
		routing:      make(map[string]string),
	}
}

// RegisterClient admits a client to this engine's fill-delivery surface.
// Re-registration from the same client on the same engine is an idempotent
// no-op (logged, connection still accepted).
func (e *MatchEngine) RegisterClient(clientID, secret string) RegisterResult {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(e.sharedSecret)) != 1 {
		return RegisterResult{Successful: false}
	}

	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	if e.clients[clientID] {
		log.Warn().Str("client_id", clientID).Msg("duplicate RegisterClient, ignoring")
		return RegisterResult{Successful: true, EngineAddr: e.Address}
	}
	e.clients[clientID] = true
	e.queues[clientID] = make(chan common.Fill, fillQueueDepth)
	return RegisterResult{Successful: true, EngineAddr: e.Address}
}

// FillQueue returns the channel a locally-registered client's long-poll
// stream should drain. The second return is false if the client is not
// registered here.
func (e *MatchEngine) FillQueue(clientID string) (<-chan common.Fill, bool) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	q, ok := e.queues[clientID]
	return q, ok
}

// SetRouter wires the PeerRouter after construction, for the common
// bootstrap case where a MatchEngine and its Synchronizer are each other's
// dependency: construct both, then wire the handles.
func (e *MatchEngine) SetRouter(router PeerRouter) {
	e.router = router
}

func (e *MatchEngine) bookFor(symbol string) *bookEntry {
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	be, ok := e.books[symbol]
	if !ok {
		be = &bookEntry{book: book.NewOrderBook(symbol)}
		e.books[symbol] = be
	}
	return be
}

// SubmitOrder is the routing gate and match gate. A caller that times out
// may retry with the same order_id; a duplicate order_id returns the cached
// result instead of matching again.
func (e *MatchEngine) SubmitOrder(order *common.Order) (SubmitResult, error) {
	e.ordersMu.Lock()
	if cached, ok := e.results[order.OrderID]; ok {
		e.ordersMu.Unlock()
		return cached, nil
	}
	e.ordersMu.Unlock()

	bestPeer, err := e.router.LookupBBOEngine(order)
	if err != nil {
		return SubmitResult{}, err
	}

	// Routing predicate: at-most-once. Only the origin engine may forward;
	// an order whose origin is elsewhere has already been rerouted once and
	// must be processed locally regardless of what the BBO view now says —
	// this is what bounds order travel to <=2 engines and prevents cycles.
	if bestPeer != e.Address && order.OriginEngineAddr == e.Address {
		if err := e.router.RouteOrder(order, bestPeer); err != nil {
			return SubmitResult{}, ErrRouteFailed
		}
		e.metrics.OrdersRouted.Inc()
		result := SubmitResult{OrderID: order.OrderID, Routed: true}
		e.cacheResult(order.OrderID, result)
		return result, nil
	}

	return e.submitLocal(order)
}

func (e *MatchEngine) submitLocal(order *common.Order) (SubmitResult, error) {
	e.ordersMu.Lock()
	e.orders[order.OrderID] = order
	e.ordersMu.Unlock()

	e.clientsMu.Lock()
	if _, ok := e.routing[order.ClientID]; !ok {
		e.routing[order.ClientID] = order.OriginEngineAddr
	}
	e.clientsMu.Unlock()

	be := e.bookFor(order.Symbol)
	be.mu.Lock()
	incoming, resting, err := be.book.AddOrder(order)
	be.seq++
	var bids, asks []book.LevelSnapshot
	if err == nil {
		bids, asks = be.book.Snapshot()
	}
	be.mu.Unlock()
	if err != nil {
		return SubmitResult{}, err
	}
	e.router.PublishUpdate(order.Symbol, bids, asks)

	e.metrics.OrdersSubmitted.Inc()
	e.metrics.Fills.Add(float64(len(incoming)))

	for _, f := range incoming {
		e.deliverFill(order.ClientID, f)
	}
	for _, f := range resting {
		e.ordersMu.Lock()
		restingOrder, ok := e.orders[f.OrderIDResting]
		e.ordersMu.Unlock()
		if !ok {
			log.Error().Str("order_id", f.OrderIDResting).Msg("resting order missing from order table, dropping its fill")
			e.metrics.FillsDropped.Inc()
			continue
		}
		e.deliverFill(restingOrder.ClientID, f)
	}

	result := SubmitResult{OrderID: order.OrderID, Fills: incoming}
	e.cacheResult(order.OrderID, result)
	return result, nil
}

func (e *MatchEngine) cacheResult(orderID string, result SubmitResult) {
	e.ordersMu.Lock()
	e.results[orderID] = result
	e.ordersMu.Unlock()
}

// deliverFill routes one fill addressed to clientID: enqueue locally if the
// client is registered on this engine, else consult the routing table and
// forward to clientID's origin engine.
func (e *MatchEngine) deliverFill(clientID string, f common.Fill) {
	e.clientsMu.Lock()
	if e.clients[clientID] {
		q := e.queues[clientID]
		e.clientsMu.Unlock()
		select {
		case q <- f:
		default:
			log.Error().Str("client_id", clientID).Str("fill_id", f.FillID).Msg("fill queue full, dropping oldest")
			<-q
			q <- f
		}
		return
	}
	dst, ok := e.routing[clientID]
	e.clientsMu.Unlock()

	if !ok {
		log.Error().Str("client_id", clientID).Str("fill_id", f.FillID).Msg("FILL_DROPPED: no routing table entry for resting client")
		e.metrics.FillsDropped.Inc()
		return
	}
	if err := e.router.RouteFill(f, clientID, dst); err != nil {
		log.Error().Err(err).Str("client_id", clientID).Str("fill_id", f.FillID).Msg("failed to route fill back to origin engine")
	}
}

// DeliverRoutedFill accepts a fill produced on a peer engine, addressed to
// one of this engine's locally-registered clients.
func (e *MatchEngine) DeliverRoutedFill(f common.Fill, clientID string) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	if !e.clients[clientID] {
		log.Error().Str("client_id", clientID).Str("fill_id", f.FillID).Msg("DeliverRoutedFill for unknown local client, dropping")
		e.metrics.FillsDropped.Inc()
		return
	}
	q := e.queues[clientID]
	select {
	case q <- f:
	default:
		log.Error().Str("client_id", clientID).Str("fill_id", f.FillID).Msg("fill queue full, dropping oldest")
		<-q
		q <- f
	}
}

// CancelOrder marks an order cancelled and removes it from its book.
func (e *MatchEngine) CancelOrder(orderID string) CancelResult {
	e.ordersMu.Lock()
	order, ok := e.orders[orderID]
	e.ordersMu.Unlock()
	if !ok {
		return CancelNotFound
	}
	if order.Status == common.StatusCancelled {
		return CancelAlreadyCancelled
	}

	be := e.bookFor(order.Symbol)
	be.mu.Lock()
	be.book.CancelOrder(order)
	be.seq++
	bids, asks := be.book.Snapshot()
	be.mu.Unlock()

	order.Status = common.StatusCancelled
	e.router.PublishUpdate(order.Symbol, bids, asks)
	return CancelSuccess
}

// GetOrderBook returns the aggregated snapshot for symbol, queried by peers
// over the RPC surface of the same name.
func (e *MatchEngine) GetOrderBook(symbol string) BookSnapshot {
	be := e.bookFor(symbol)
	be.mu.Lock()
	defer be.mu.Unlock()
	bids, asks := be.book.Snapshot()
	return BookSnapshot{Symbol: symbol, Sequence: be.seq, Bids: bids, Asks: asks}
}

// LocalBestPrices reports this engine's current best bid/ask for symbol,
// used both by the routing decision and by gossip publication.
func (e *MatchEngine) LocalBestPrices(symbol string) (bid, ask string, bidOK, askOK bool) {
	be := e.bookFor(symbol)
	be.mu.Lock()
	defer be.mu.Unlock()
	b, bOK := be.book.BestBid()
	a, aOK := be.book.BestAsk()
	if bOK {
		bid = b.String()
	}
	if aOK {
		ask = a.String()
	}
	return bid, ask, bOK, aOK
}

// Symbols returns every symbol this engine has created a book for, used by
// the gossip loop to decide which symbols to pull from peers.
func (e *MatchEngine) Symbols() []string {
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	symbols := make([]string, 0, len(e.books))
	for s := range e.books {
		symbols = append(symbols, s)
	}
	return symbols
}
