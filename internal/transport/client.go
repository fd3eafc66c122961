package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/engine"
)

const dialTimeout = 5 * time.Second

// call dials addr, writes one frame, reads exactly one response frame, and
// closes the connection — every unary RPC in this package is this shape.
func call(addr string, method Method, payload []byte) (Frame, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, method, payload); err != nil {
		return Frame{}, err
	}
	return ReadFrame(conn)
}

// PeerClient implements gossip.PeerStub over the wire protocol, one
// short-lived connection per RPC.
type PeerClient struct {
	addr string
}

// NewPeerClient constructs a PeerClient addressed at addr.
func NewPeerClient(addr string) *PeerClient {
	return &PeerClient{addr: addr}
}

func (c *PeerClient) Addr() string { return c.addr }

func (c *PeerClient) SyncOrderBook(sourceAddr, symbol string, bids, asks []book.LevelSnapshot, seq uint64) error {
	_, err := call(c.addr, MethodSyncOrderBook, SyncOrderBookRequest{
		Source: sourceAddr, Symbol: symbol, Bids: bids, Asks: asks, Sequence: seq,
	}.Encode())
	return err
}

func (c *PeerClient) GetOrderBook(symbol string) (engine.BookSnapshot, error) {
	frame, err := call(c.addr, MethodGetOrderBook, GetOrderBookRequest{Symbol: symbol}.Encode())
	if err != nil {
		return engine.BookSnapshot{}, err
	}
	res, err := DecodeGetOrderBookResponse(frame.Payload)
	if err != nil {
		return engine.BookSnapshot{}, err
	}
	return engine.BookSnapshot{Symbol: res.Symbol, Sequence: res.Sequence, Bids: res.Bids, Asks: res.Asks}, nil
}

func (c *PeerClient) SyncGlobalBestPrice(symbol, bid, ask, engineAddr string) error {
	_, err := call(c.addr, MethodSyncGlobalBestPrice, SyncGlobalBestPriceRequest{
		Symbol: symbol, Bid: bid, Ask: ask, EngineAddr: engineAddr,
	}.Encode())
	return err
}

func (c *PeerClient) SubmitOrder(order *common.Order) error {
	_, err := call(c.addr, MethodSubmitOrder, SubmitOrderRequest{Order: order}.Encode())
	return err
}

func (c *PeerClient) DeliverRoutedFill(f common.Fill, clientID string) error {
	_, err := call(c.addr, MethodDeliverRoutedFill, DeliverRoutedFillRequest{Fill: f, ClientID: clientID}.Encode())
	return err
}

// EngineClient is the client-facing RPC surface a trading client (or the
// simulator in cmd/client) uses against one matching engine.
type EngineClient struct {
	addr string
}

// NewEngineClient constructs an EngineClient addressed at addr.
func NewEngineClient(addr string) *EngineClient {
	return &EngineClient{addr: addr}
}

func (c *EngineClient) RegisterClient(clientID, secret string) (RegisterClientResponse, error) {
	frame, err := call(c.addr, MethodRegisterClient, RegisterClientRequest{ClientID: clientID, Secret: secret}.Encode())
	if err != nil {
		return RegisterClientResponse{}, err
	}
	return DecodeRegisterClientResponse(frame.Payload)
}

func (c *EngineClient) SubmitOrder(order *common.Order) (SubmitOrderResponse, error) {
	frame, err := call(c.addr, MethodSubmitOrder, SubmitOrderRequest{Order: order}.Encode())
	if err != nil {
		return SubmitOrderResponse{}, err
	}
	return DecodeSubmitOrderResponse(frame.Payload)
}

func (c *EngineClient) CancelOrder(orderID string) (CancelOrderResponse, error) {
	frame, err := call(c.addr, MethodCancelOrder, CancelOrderRequest{OrderID: orderID}.Encode())
	if err != nil {
		return CancelOrderResponse{}, err
	}
	return DecodeCancelOrderResponse(frame.Payload)
}

// StreamFills dials addr once and keeps reading pushed FillFrame messages
// until the connection closes, handing each to onFill — the client side of
// the GetFills server-streamed RPC.
func StreamFills(addr, clientID string, onFill func(common.Fill)) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, MethodGetFills, putString(nil, clientID)); err != nil {
		return err
	}
	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			return err
		}
		ff, err := DecodeFillFrame(frame.Payload)
		if err != nil {
			return err
		}
		onFill(ff.Fill)
	}
}

// AssignClient queries the exchange node at addr for which engine a client
// at location should connect to.
func AssignClient(exchangeAddr, clientID, secret, location string) (AssignClientResponse, error) {
	frame, err := call(exchangeAddr, MethodAssignClient, AssignClientRequest{
		ClientID: clientID, Secret: secret, Location: location,
	}.Encode())
	if err != nil {
		return AssignClientResponse{}, err
	}
	return DecodeAssignClientResponse(frame.Payload)
}
