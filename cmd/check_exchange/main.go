package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vitos/deribit_gateway/internal/app"
	"github.com/vitos/deribit_gateway/internal/infrastructure/config"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing Deribit Interaction...\n")
	fmt.Printf("Network: %s\n", cfg.Network())
	fmt.Printf("Endpoint: %s\n", cfg.RESTEndpoint())

	client, err := app.New(cfg, nil)
	if err != nil {
		fmt.Printf("Failed to init client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	instrument := "BTC-PERPETUAL"
	if len(os.Args) > 1 {
		instrument = os.Args[1]
	}

	// 2. Check Public Endpoints (Spec, Ticker)
	spec, err := client.GetInstrument(ctx, instrument)
	if err != nil {
		fmt.Printf("❌ Failed to get instrument: %v\n", err)
	} else {
		fmt.Printf("✅ Instrument %s: kind=%s contract_size=%s tick_size=%s min_trade_amount=%s\n",
			spec.InstrumentName, spec.Kind, spec.ContractSize, spec.TickSize, spec.MinTradeAmount)
	}

	ticker, err := client.GetTicker(ctx, instrument)
	if err != nil {
		fmt.Printf("❌ Failed to get ticker: %v\n", err)
	} else {
		fmt.Printf("✅ Ticker %s: bid=%s ask=%s mark=%s\n", instrument, ticker.BestBidPrice.Decimal, ticker.BestAskPrice.Decimal, ticker.MarkPrice)
	}

	// 3. Check Private Endpoints (Account, Positions)
	currency := spec.Currency
	if currency == "" {
		currency = "BTC"
	}
	summary, err := client.GetAccountSummary(ctx, currency)
	if err != nil {
		fmt.Printf("❌ Failed to get account summary: %v\n", err)
	} else {
		fmt.Printf("✅ Account (%s): Equity=%s Available=%s\n", currency, summary.Equity, summary.AvailableFunds)
	}

	positions, err := client.GetPositions(ctx, currency, "")
	if err != nil {
		fmt.Printf("❌ Failed to get positions: %v\n", err)
	} else {
		for _, p := range positions {
			fmt.Printf("✅ Position %s: Size=%s, Direction=%s, Avg=%s, PnL=%s\n",
				p.InstrumentName, p.Size, p.Direction, p.AveragePrice, p.TotalProfitLoss)
		}
		if len(positions) == 0 {
			fmt.Printf("✅ No open positions in %s\n", currency)
		}
	}
}
