package common

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Fill is the record of one match. FillID is deterministic from the pair of
// order ids so a duplicate delivery (at-least-once) can be detected by the
// receiver without coordination.
type Fill struct {
	FillID            string
	OrderIDIncoming   string
	OrderIDResting    string
	Symbol            string
	Price             decimal.Decimal
	Quantity          uint64
	Timestamp         time.Time
	BuyerID           string
	SellerID          string
	EngineDestination string
}

// FillID computes the deterministic identifier for a match between an
// incoming and a resting order. It is a pure function of the pair so both
// sides of one match (the incoming-side record and the resting-side record)
// can carry the same id, and replays of the same match are detectable.
func FillID(incomingOrderID, restingOrderID string) string {
	h := sha1.New()
	h.Write([]byte(incomingOrderID))
	h.Write([]byte{0})
	h.Write([]byte(restingOrderID))
	return hex.EncodeToString(h.Sum(nil))
}
