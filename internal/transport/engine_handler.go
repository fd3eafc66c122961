package transport

import (
	"net"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu-labs/meridian/internal/engine"
	"github.com/saiputravu-labs/meridian/internal/gossip"
)

// NewEngineHandler builds the frame Handler for an engine node: it
// dispatches client-facing RPCs (RegisterClient, SubmitOrder, GetFills,
// CancelOrder) against e, and peer-facing gossip RPCs (SyncOrderBook,
// GetOrderBook, SyncGlobalBestPrice, DeliverRoutedFill) against s. Both
// listener roles share one handler and one Server: the method ID alone
// decides the branch.
func NewEngineHandler(e *engine.MatchEngine, s *gossip.Synchronizer) Handler {
	return func(t *tomb.Tomb, conn net.Conn, f Frame) error {
		switch f.Method {
		case MethodRegisterClient:
			return handleRegisterClient(conn, e, f)
		case MethodSubmitOrder:
			return handleSubmitOrder(conn, e, f)
		case MethodCancelOrder:
			return handleCancelOrder(conn, e, f)
		case MethodGetFills:
			return handleGetFills(t, conn, e, f)
		case MethodSyncOrderBook:
			return handleSyncOrderBook(conn, s, f)
		case MethodGetOrderBook:
			return handleGetOrderBook(conn, e, f)
		case MethodSyncGlobalBestPrice:
			return handleSyncGlobalBestPrice(conn, s, f)
		case MethodDeliverRoutedFill:
			return handleDeliverRoutedFill(conn, e, f)
		default:
			return ErrInvalidMethod
		}
	}
}

func handleRegisterClient(conn net.Conn, e *engine.MatchEngine, f Frame) error {
	req, err := DecodeRegisterClientRequest(f.Payload)
	if err != nil {
		return err
	}
	res := e.RegisterClient(req.ClientID, req.Secret)
	return WriteFrame(conn, MethodRegisterClient, RegisterClientResponse{
		Successful: res.Successful, EngineAddr: res.EngineAddr,
	}.Encode())
}

func handleSubmitOrder(conn net.Conn, e *engine.MatchEngine, f Frame) error {
	req, err := DecodeSubmitOrderRequest(f.Payload)
	if err != nil {
		return err
	}
	res, err := e.SubmitOrder(req.Order)
	if err != nil {
		log.Error().Err(err).Str("order_id", req.Order.OrderID).Msg("SubmitOrder failed")
		return WriteFrame(conn, MethodSubmitOrder, SubmitOrderResponse{OrderID: req.Order.OrderID}.Encode())
	}
	return WriteFrame(conn, MethodSubmitOrder, SubmitOrderResponse{
		OrderID: res.OrderID, Routed: res.Routed, Fills: res.Fills,
	}.Encode())
}

func handleCancelOrder(conn net.Conn, e *engine.MatchEngine, f Frame) error {
	req, err := DecodeCancelOrderRequest(f.Payload)
	if err != nil {
		return err
	}
	result := e.CancelOrder(req.OrderID)
	return WriteFrame(conn, MethodCancelOrder, CancelOrderResponse{Result: byte(result)}.Encode())
}

// handleGetFills services the client's fill stream for the lifetime of the
// connection: every fill enqueued for the client is pushed as a FillFrame
// until the peer disconnects or the node shuts down. This holds the
// connection rather than handing it back to the pool after one frame.
func handleGetFills(t *tomb.Tomb, conn net.Conn, e *engine.MatchEngine, f Frame) error {
	clientID, _, err := takeString(f.Payload)
	if err != nil {
		return err
	}
	queue, ok := e.FillQueue(clientID)
	if !ok {
		return engine.ErrNotFound
	}
	for {
		select {
		case <-t.Dying():
			return nil
		case fill := <-queue:
			if err := WriteFrame(conn, MethodGetFills, FillFrame{Fill: fill}.Encode()); err != nil {
				return err
			}
		}
	}
}

func handleSyncOrderBook(conn net.Conn, s *gossip.Synchronizer, f Frame) error {
	req, err := DecodeSyncOrderBookRequest(f.Payload)
	if err != nil {
		return err
	}
	s.HandleSyncOrderBook(req.Source, req.Symbol, req.Bids, req.Asks, req.Sequence)
	return WriteFrame(conn, MethodSyncOrderBook, nil)
}

func handleGetOrderBook(conn net.Conn, e *engine.MatchEngine, f Frame) error {
	req, err := DecodeGetOrderBookRequest(f.Payload)
	if err != nil {
		return err
	}
	snap := e.GetOrderBook(req.Symbol)
	return WriteFrame(conn, MethodGetOrderBook, GetOrderBookResponse{
		Symbol: snap.Symbol, Sequence: snap.Sequence, Bids: snap.Bids, Asks: snap.Asks,
	}.Encode())
}

func handleSyncGlobalBestPrice(conn net.Conn, s *gossip.Synchronizer, f Frame) error {
	req, err := DecodeSyncGlobalBestPriceRequest(f.Payload)
	if err != nil {
		return err
	}
	s.SyncGlobalBestPrice(req.Symbol, req.Bid, req.Ask, req.EngineAddr)
	return WriteFrame(conn, MethodSyncGlobalBestPrice, nil)
}

func handleDeliverRoutedFill(conn net.Conn, e *engine.MatchEngine, f Frame) error {
	req, err := DecodeDeliverRoutedFillRequest(f.Payload)
	if err != nil {
		return err
	}
	e.DeliverRoutedFill(req.Fill, req.ClientID)
	return WriteFrame(conn, MethodDeliverRoutedFill, nil)
}
