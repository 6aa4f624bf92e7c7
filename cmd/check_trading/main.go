package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/deribit_gateway/internal/app"
	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/infrastructure/config"
	"github.com/vitos/deribit_gateway/internal/usecase"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Network() != domain.NetworkTest {
		fmt.Println("Refusing to place orders outside the test network")
		os.Exit(1)
	}

	fmt.Printf("Testing Trading on Deribit (Testnet)...\n")
	client, err := app.New(cfg, nil)
	if err != nil {
		fmt.Printf("Failed to init client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	instrument := "BTC-PERPETUAL"

	spec, err := client.Spec(ctx, instrument)
	if err != nil {
		fmt.Printf("❌ Failed to get spec: %v\n", err)
		os.Exit(1)
	}
	ticker, err := client.GetTicker(ctx, instrument)
	if err != nil {
		fmt.Printf("❌ Failed to get ticker: %v\n", err)
		os.Exit(1)
	}

	// --- Local rejection ---
	fmt.Println("\n--- Testing local validation ---")
	bad := spec.ContractSize.Add(spec.ContractSize.Div(decimal.NewFromInt(2)))
	_, err = client.PlaceOrder(ctx, domain.OrderRequest{
		InstrumentName: instrument,
		Side:           domain.SideBuy,
		Amount:         bad,
		Price:          ticker.MarkPrice,
	})
	if e, ok := domain.AsError(err); ok && e.Kind == domain.KindValidation {
		fmt.Printf("✅ Amount %s rejected locally: %s (suggested %s)\n", bad, e.Reason, e.Suggested)
	} else {
		fmt.Printf("❌ Expected a local rejection, got %v\n", err)
	}

	// --- Resting limit order ---
	fmt.Println("\n--- Testing LIMIT BUY ---")
	price := usecase.RoundToStep(ticker.MarkPrice.Mul(decimal.RequireFromString("0.8")), spec.TickSize)
	label := "check-" + uuid.NewString()[:8]
	fmt.Printf("Placing post-only Buy (Amount: %s, Price: %s, Label: %s)...\n", spec.MinTradeAmount, price, label)
	order, err := client.PlaceOrder(ctx, domain.OrderRequest{
		InstrumentName: instrument,
		Side:           domain.SideBuy,
		Amount:         spec.MinTradeAmount,
		Price:          price,
		PostOnly:       true,
		Label:          label,
	})
	if err != nil {
		fmt.Printf("❌ Failed to buy: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Order Placed: id=%s state=%s\n", order.OrderID, order.State)

	found, err := client.GetOrderStateByLabel(ctx, spec.Currency, label)
	if err != nil {
		fmt.Printf("⚠️ Failed to look up label: %v\n", err)
	} else {
		fmt.Printf("✅ %d order(s) carry label %s\n", len(found), label)
	}

	fmt.Println("Cancelling...")
	cancelled, err := client.Cancel(ctx, order.OrderID)
	if err != nil {
		fmt.Printf("❌ Failed to cancel: %v\n", err)
	} else {
		fmt.Printf("✅ Order %s is %s\n", cancelled.OrderID, cancelled.State)
	}

	// --- Cancel all twice ---
	fmt.Println("\n--- Testing CANCEL ALL ---")
	for i := 0; i < 2; i++ {
		res, err := client.CancelAllByCurrency(ctx, spec.Currency)
		if err != nil {
			fmt.Printf("❌ Cancel all failed: %v\n", err)
			continue
		}
		fmt.Printf("✅ Cancel all #%d: %d cancelled\n", i+1, res.Cancelled)
	}
}
