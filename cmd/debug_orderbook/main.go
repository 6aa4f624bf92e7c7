package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vitos/deribit_gateway/internal/app"
	"github.com/vitos/deribit_gateway/internal/infrastructure/config"
)

func main() {
	cfg := config.Default()
	if os.Getenv(config.EnvUseTestnet) == "false" {
		cfg.Exchange.Network = "main"
	}

	instrument := "BTC-PERPETUAL"
	if len(os.Args) > 1 {
		instrument = os.Args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, transport := range []string{"http", "ws"} {
		cfg.Exchange.Transport = transport
		client, err := app.New(cfg, nil)
		if err != nil {
			log.Fatalf("Error creating client: %v", err)
		}

		fmt.Printf("Fetching Order Book for %s (%s)...\n", instrument, transport)
		ob, err := client.GetOrderBook(ctx, instrument, 10)
		if err != nil {
			fmt.Printf("Error fetching order book: %v\n", err)
			client.Close()
			continue
		}

		fmt.Printf("Order Book: %d Bids, %d Asks, mark=%s\n", len(ob.Bids), len(ob.Asks), ob.MarkPrice)
		if len(ob.Bids) > 0 {
			fmt.Printf("Best Bid: %s (Size: %s)\n", ob.Bids[0].Price, ob.Bids[0].Amount)
		}
		if len(ob.Asks) > 0 {
			fmt.Printf("Best Ask: %s (Size: %s)\n", ob.Asks[0].Price, ob.Asks[0].Amount)
		}
		client.Close()
	}
}
