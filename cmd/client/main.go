// Command client is a flat-flag trading simulator (stdlib flag, no
// subcommands): it has no subcommand surface, so cobra would add nothing
// a single flag.FlagSet doesn't already give it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/transport"
)

func main() {
	exchangeAddr := flag.String("exchange", "127.0.0.1:9000", "address of the exchange/bootstrap node")
	engineAddr := flag.String("engine", "", "address of a matching engine to connect to directly, skipping AssignClient")
	clientID := flag.String("client-id", "", "client id (compulsory)")
	secret := flag.String("secret", "", "shared secret")
	location := flag.String("location", "default", "client location hint for assignment")
	symbol := flag.String("symbol", "BTCUSD", "symbol to trade")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	price := flag.String("price", "100.00", "limit price")
	qty := flag.Uint64("qty", 10, "order quantity")
	action := flag.String("action", "place", "action: 'place', 'cancel', 'stream'")
	orderID := flag.String("order-id", "", "order id to cancel, required for -action=cancel")

	flag.Parse()

	if *clientID == "" {
		fmt.Println("Error: -client-id is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	addr := *engineAddr
	if addr == "" {
		res, err := transport.AssignClient(*exchangeAddr, *clientID, *secret, *location)
		if err != nil {
			log.Fatalf("failed to contact exchange: %v", err)
		}
		if !res.Authenticated {
			log.Fatal("authentication rejected by exchange")
		}
		addr = res.EngineAddr
		fmt.Printf("assigned to engine %s\n", addr)
	}

	client := transport.NewEngineClient(addr)
	regRes, err := client.RegisterClient(*clientID, *secret)
	if err != nil {
		log.Fatalf("failed to register with engine: %v", err)
	}
	if !regRes.Successful {
		log.Fatal("engine rejected registration")
	}

	go func() {
		err := transport.StreamFills(addr, *clientID, func(f common.Fill) {
			fmt.Printf("\n[FILL] %s %s qty=%d price=%s buyer=%s seller=%s\n",
				f.Symbol, f.FillID, f.Quantity, f.Price.String(), f.BuyerID, f.SellerID)
		})
		if err != nil {
			log.Printf("fill stream ended: %v", err)
		}
	}()

	switch *action {
	case "place":
		side := common.Buy
		if *sideStr == "sell" {
			side = common.Sell
		}
		limitPrice, err := decimal.NewFromString(*price)
		if err != nil {
			log.Fatalf("invalid -price: %v", err)
		}
		order := &common.Order{
			OrderID:           uuid.NewString(),
			ClientID:          *clientID,
			OriginEngineAddr:  addr,
			Symbol:            *symbol,
			Side:              side,
			Price:             limitPrice,
			Quantity:          *qty,
			RemainingQuantity: *qty,
			Timestamp:         time.Now(),
		}
		res, err := client.SubmitOrder(order)
		if err != nil {
			log.Fatalf("SubmitOrder failed: %v", err)
		}
		fmt.Printf("-> submitted %s, routed=%v, immediate fills=%d\n", res.OrderID, res.Routed, len(res.Fills))

	case "cancel":
		if *orderID == "" {
			log.Fatal("Error: -order-id is required for -action=cancel")
		}
		res, err := client.CancelOrder(*orderID)
		if err != nil {
			log.Fatalf("CancelOrder failed: %v", err)
		}
		fmt.Printf("-> cancel result: %d\n", res.Result)

	case "stream":
		// fill stream already started above; nothing else to do.

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nListening for fills... (Ctrl+C to exit)")
	select {}
}
