package transport

import (
	"encoding/binary"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
)

func putDecimal(buf []byte, d decimal.Decimal) []byte {
	return putString(buf, d.String())
}

func takeDecimal(buf []byte) (decimal.Decimal, []byte, error) {
	s, rest, err := takeString(buf)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	return d, rest, nil
}

func putUint64(buf []byte, v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return append(buf, b...)
}

func takeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, ErrMessageTooShort
	}
	return binary.BigEndian.Uint64(buf[0:8]), buf[8:], nil
}

func putUint32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return append(buf, b...)
}

func takeUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrMessageTooShort
	}
	return binary.BigEndian.Uint32(buf[0:4]), buf[4:], nil
}

func putByte(buf []byte, v byte) []byte {
	return append(buf, v)
}

func takeByte(buf []byte) (byte, []byte, error) {
	if len(buf) < 1 {
		return 0, nil, ErrMessageTooShort
	}
	return buf[0], buf[1:], nil
}

// --- RegisterClient ---

type RegisterClientRequest struct {
	ClientID string
	Secret   string
}

func (m RegisterClientRequest) Encode() []byte {
	buf := putString(nil, m.ClientID)
	return putString(buf, m.Secret)
}

func DecodeRegisterClientRequest(payload []byte) (RegisterClientRequest, error) {
	clientID, rest, err := takeString(payload)
	if err != nil {
		return RegisterClientRequest{}, err
	}
	secret, _, err := takeString(rest)
	if err != nil {
		return RegisterClientRequest{}, err
	}
	return RegisterClientRequest{ClientID: clientID, Secret: secret}, nil
}

type RegisterClientResponse struct {
	Successful bool
	EngineAddr string
}

func (m RegisterClientResponse) Encode() []byte {
	ok := byte(0)
	if m.Successful {
		ok = 1
	}
	buf := putByte(nil, ok)
	return putString(buf, m.EngineAddr)
}

func DecodeRegisterClientResponse(payload []byte) (RegisterClientResponse, error) {
	ok, rest, err := takeByte(payload)
	if err != nil {
		return RegisterClientResponse{}, err
	}
	addr, _, err := takeString(rest)
	if err != nil {
		return RegisterClientResponse{}, err
	}
	return RegisterClientResponse{Successful: ok == 1, EngineAddr: addr}, nil
}

// --- SubmitOrder ---

func EncodeOrder(buf []byte, o *common.Order) []byte {
	buf = putString(buf, o.OrderID)
	buf = putString(buf, o.ClientID)
	buf = putString(buf, o.OriginEngineAddr)
	buf = putString(buf, o.Symbol)
	buf = putByte(buf, byte(o.Side))
	buf = putDecimal(buf, o.Price)
	buf = putUint64(buf, o.Quantity)
	buf = putUint64(buf, o.RemainingQuantity)
	buf = putByte(buf, byte(o.Status))
	buf = putUint64(buf, uint64(o.Timestamp.UnixNano()))
	return buf
}

func DecodeOrder(buf []byte) (*common.Order, []byte, error) {
	orderID, buf, err := takeString(buf)
	if err != nil {
		return nil, nil, err
	}
	clientID, buf, err := takeString(buf)
	if err != nil {
		return nil, nil, err
	}
	origin, buf, err := takeString(buf)
	if err != nil {
		return nil, nil, err
	}
	symbol, buf, err := takeString(buf)
	if err != nil {
		return nil, nil, err
	}
	side, buf, err := takeByte(buf)
	if err != nil {
		return nil, nil, err
	}
	price, buf, err := takeDecimal(buf)
	if err != nil {
		return nil, nil, err
	}
	qty, buf, err := takeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	remaining, buf, err := takeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	status, buf, err := takeByte(buf)
	if err != nil {
		return nil, nil, err
	}
	ts, buf, err := takeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	return &common.Order{
		OrderID:           orderID,
		ClientID:          clientID,
		OriginEngineAddr:  origin,
		Symbol:            symbol,
		Side:              common.Side(side),
		Price:             price,
		Quantity:          qty,
		RemainingQuantity: remaining,
		Status:            common.Status(status),
		Timestamp:         time.Unix(0, int64(ts)),
	}, buf, nil
}

type SubmitOrderRequest struct {
	Order *common.Order
}

func (m SubmitOrderRequest) Encode() []byte {
	return EncodeOrder(nil, m.Order)
}

func DecodeSubmitOrderRequest(payload []byte) (SubmitOrderRequest, error) {
	o, _, err := DecodeOrder(payload)
	if err != nil {
		return SubmitOrderRequest{}, err
	}
	return SubmitOrderRequest{Order: o}, nil
}

func EncodeFill(buf []byte, f common.Fill) []byte {
	buf = putString(buf, f.FillID)
	buf = putString(buf, f.OrderIDIncoming)
	buf = putString(buf, f.OrderIDResting)
	buf = putString(buf, f.Symbol)
	buf = putDecimal(buf, f.Price)
	buf = putUint64(buf, f.Quantity)
	buf = putUint64(buf, uint64(f.Timestamp.UnixNano()))
	buf = putString(buf, f.BuyerID)
	buf = putString(buf, f.SellerID)
	buf = putString(buf, f.EngineDestination)
	return buf
}

func DecodeFill(buf []byte) (common.Fill, []byte, error) {
	fillID, buf, err := takeString(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	incoming, buf, err := takeString(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	resting, buf, err := takeString(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	symbol, buf, err := takeString(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	price, buf, err := takeDecimal(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	qty, buf, err := takeUint64(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	ts, buf, err := takeUint64(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	buyer, buf, err := takeString(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	seller, buf, err := takeString(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	dest, buf, err := takeString(buf)
	if err != nil {
		return common.Fill{}, nil, err
	}
	return common.Fill{
		FillID:            fillID,
		OrderIDIncoming:   incoming,
		OrderIDResting:    resting,
		Symbol:            symbol,
		Price:             price,
		Quantity:          qty,
		Timestamp:         time.Unix(0, int64(ts)),
		BuyerID:           buyer,
		SellerID:          seller,
		EngineDestination: dest,
	}, buf, nil
}

type SubmitOrderResponse struct {
	OrderID string
	Routed  bool
	Fills   []common.Fill
}

func (m SubmitOrderResponse) Encode() []byte {
	buf := putString(nil, m.OrderID)
	routed := byte(0)
	if m.Routed {
		routed = 1
	}
	buf = putByte(buf, routed)
	buf = putUint32(buf, uint32(len(m.Fills)))
	for _, f := range m.Fills {
		buf = EncodeFill(buf, f)
	}
	return buf
}

func DecodeSubmitOrderResponse(payload []byte) (SubmitOrderResponse, error) {
	orderID, buf, err := takeString(payload)
	if err != nil {
		return SubmitOrderResponse{}, err
	}
	routed, buf, err := takeByte(buf)
	if err != nil {
		return SubmitOrderResponse{}, err
	}
	n, buf, err := takeUint32(buf)
	if err != nil {
		return SubmitOrderResponse{}, err
	}
	fills := make([]common.Fill, 0, n)
	for i := uint32(0); i < n; i++ {
		var f common.Fill
		f, buf, err = DecodeFill(buf)
		if err != nil {
			return SubmitOrderResponse{}, err
		}
		fills = append(fills, f)
	}
	return SubmitOrderResponse{OrderID: orderID, Routed: routed == 1, Fills: fills}, nil
}

// --- CancelOrder ---

type CancelOrderRequest struct {
	OrderID string
}

func (m CancelOrderRequest) Encode() []byte {
	return putString(nil, m.OrderID)
}

func DecodeCancelOrderRequest(payload []byte) (CancelOrderRequest, error) {
	id, _, err := takeString(payload)
	if err != nil {
		return CancelOrderRequest{}, err
	}
	return CancelOrderRequest{OrderID: id}, nil
}

type CancelOrderResponse struct {
	Result byte // mirrors engine.CancelResult
}

func (m CancelOrderResponse) Encode() []byte {
	return putByte(nil, m.Result)
}

func DecodeCancelOrderResponse(payload []byte) (CancelOrderResponse, error) {
	r, _, err := takeByte(payload)
	if err != nil {
		return CancelOrderResponse{}, err
	}
	return CancelOrderResponse{Result: r}, nil
}

// --- GetFills (server-streamed: one Fill frame per push) ---

type FillFrame struct {
	Fill common.Fill
}

func (m FillFrame) Encode() []byte {
	return EncodeFill(nil, m.Fill)
}

func DecodeFillFrame(payload []byte) (FillFrame, error) {
	f, _, err := DecodeFill(payload)
	if err != nil {
		return FillFrame{}, err
	}
	return FillFrame{Fill: f}, nil
}

// --- SyncOrderBook / GetOrderBook ---

func encodeLevels(buf []byte, levels []book.LevelSnapshot) []byte {
	buf = putUint32(buf, uint32(len(levels)))
	for _, l := range levels {
		buf = putDecimal(buf, l.Price)
		buf = putUint64(buf, l.TotalRemaining)
		buf = putUint32(buf, l.OrderCount)
	}
	return buf
}

func decodeLevels(buf []byte) ([]book.LevelSnapshot, []byte, error) {
	n, buf, err := takeUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	levels := make([]book.LevelSnapshot, 0, n)
	for i := uint32(0); i < n; i++ {
		var price decimal.Decimal
		price, buf, err = takeDecimal(buf)
		if err != nil {
			return nil, nil, err
		}
		var qty uint64
		qty, buf, err = takeUint64(buf)
		if err != nil {
			return nil, nil, err
		}
		var count uint32
		count, buf, err = takeUint32(buf)
		if err != nil {
			return nil, nil, err
		}
		levels = append(levels, book.LevelSnapshot{Price: price, TotalRemaining: qty, OrderCount: count})
	}
	return levels, buf, nil
}

type SyncOrderBookRequest struct {
	Source   string // the pushing engine's configured address, never the TCP source port
	Symbol   string
	Bids     []book.LevelSnapshot
	Asks     []book.LevelSnapshot
	Sequence uint64
}

func (m SyncOrderBookRequest) Encode() []byte {
	buf := putString(nil, m.Source)
	buf = putString(buf, m.Symbol)
	buf = encodeLevels(buf, m.Bids)
	buf = encodeLevels(buf, m.Asks)
	buf = putUint64(buf, m.Sequence)
	return buf
}

func DecodeSyncOrderBookRequest(payload []byte) (SyncOrderBookRequest, error) {
	source, buf, err := takeString(payload)
	if err != nil {
		return SyncOrderBookRequest{}, err
	}
	symbol, buf, err := takeString(buf)
	if err != nil {
		return SyncOrderBookRequest{}, err
	}
	bids, buf, err := decodeLevels(buf)
	if err != nil {
		return SyncOrderBookRequest{}, err
	}
	asks, buf, err := decodeLevels(buf)
	if err != nil {
		return SyncOrderBookRequest{}, err
	}
	seq, _, err := takeUint64(buf)
	if err != nil {
		return SyncOrderBookRequest{}, err
	}
	return SyncOrderBookRequest{Source: source, Symbol: symbol, Bids: bids, Asks: asks, Sequence: seq}, nil
}

type GetOrderBookRequest struct {
	Symbol string
}

func (m GetOrderBookRequest) Encode() []byte {
	return putString(nil, m.Symbol)
}

func DecodeGetOrderBookRequest(payload []byte) (GetOrderBookRequest, error) {
	symbol, _, err := takeString(payload)
	if err != nil {
		return GetOrderBookRequest{}, err
	}
	return GetOrderBookRequest{Symbol: symbol}, nil
}

type GetOrderBookResponse struct {
	Symbol   string
	Sequence uint64
	Bids     []book.LevelSnapshot
	Asks     []book.LevelSnapshot
}

func (m GetOrderBookResponse) Encode() []byte {
	buf := putString(nil, m.Symbol)
	buf = putUint64(buf, m.Sequence)
	buf = encodeLevels(buf, m.Bids)
	buf = encodeLevels(buf, m.Asks)
	return buf
}

func DecodeGetOrderBookResponse(payload []byte) (GetOrderBookResponse, error) {
	symbol, buf, err := takeString(payload)
	if err != nil {
		return GetOrderBookResponse{}, err
	}
	seq, buf, err := takeUint64(buf)
	if err != nil {
		return GetOrderBookResponse{}, err
	}
	bids, buf, err := decodeLevels(buf)
	if err != nil {
		return GetOrderBookResponse{}, err
	}
	asks, _, err := decodeLevels(buf)
	if err != nil {
		return GetOrderBookResponse{}, err
	}
	return GetOrderBookResponse{Symbol: symbol, Sequence: seq, Bids: bids, Asks: asks}, nil
}

// --- SyncGlobalBestPrice (optional fast path) ---

type SyncGlobalBestPriceRequest struct {
	Symbol     string
	Bid        string
	Ask        string
	EngineAddr string
}

func (m SyncGlobalBestPriceRequest) Encode() []byte {
	buf := putString(nil, m.Symbol)
	buf = putString(buf, m.Bid)
	buf = putString(buf, m.Ask)
	return putString(buf, m.EngineAddr)
}

func DecodeSyncGlobalBestPriceRequest(payload []byte) (SyncGlobalBestPriceRequest, error) {
	symbol, buf, err := takeString(payload)
	if err != nil {
		return SyncGlobalBestPriceRequest{}, err
	}
	bid, buf, err := takeString(buf)
	if err != nil {
		return SyncGlobalBestPriceRequest{}, err
	}
	ask, buf, err := takeString(buf)
	if err != nil {
		return SyncGlobalBestPriceRequest{}, err
	}
	addr, _, err := takeString(buf)
	if err != nil {
		return SyncGlobalBestPriceRequest{}, err
	}
	return SyncGlobalBestPriceRequest{Symbol: symbol, Bid: bid, Ask: ask, EngineAddr: addr}, nil
}

// --- DeliverRoutedFill ---

type DeliverRoutedFillRequest struct {
	Fill     common.Fill
	ClientID string
}

func (m DeliverRoutedFillRequest) Encode() []byte {
	buf := EncodeFill(nil, m.Fill)
	return putString(buf, m.ClientID)
}

func DecodeDeliverRoutedFillRequest(payload []byte) (DeliverRoutedFillRequest, error) {
	f, buf, err := DecodeFill(payload)
	if err != nil {
		return DeliverRoutedFillRequest{}, err
	}
	clientID, _, err := takeString(buf)
	if err != nil {
		return DeliverRoutedFillRequest{}, err
	}
	return DeliverRoutedFillRequest{Fill: f, ClientID: clientID}, nil
}

// --- AssignClient ---

type AssignClientRequest struct {
	ClientID string
	Secret   string
	Location string
}

func (m AssignClientRequest) Encode() []byte {
	buf := putString(nil, m.ClientID)
	buf = putString(buf, m.Secret)
	return putString(buf, m.Location)
}

func DecodeAssignClientRequest(payload []byte) (AssignClientRequest, error) {
	clientID, buf, err := takeString(payload)
	if err != nil {
		return AssignClientRequest{}, err
	}
	secret, buf, err := takeString(buf)
	if err != nil {
		return AssignClientRequest{}, err
	}
	loc, _, err := takeString(buf)
	if err != nil {
		return AssignClientRequest{}, err
	}
	return AssignClientRequest{ClientID: clientID, Secret: secret, Location: loc}, nil
}

type AssignClientResponse struct {
	Authenticated bool
	EngineAddr    string
}

func (m AssignClientResponse) Encode() []byte {
	ok := byte(0)
	if m.Authenticated {
		ok = 1
	}
	buf := putByte(nil, ok)
	return putString(buf, m.EngineAddr)
}

func DecodeAssignClientResponse(payload []byte) (AssignClientResponse, error) {
	ok, buf, err := takeByte(payload)
	if err != nil {
		return AssignClientResponse{}, err
	}
	addr, _, err := takeString(buf)
	if err != nil {
		return AssignClientResponse{}, err
	}
	return AssignClientResponse{Authenticated: ok == 1, EngineAddr: addr}, nil
}
