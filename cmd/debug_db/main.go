package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vitos/deribit_gateway/internal/infrastructure/storage"
)

func main() {
	path := "gateway.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	entries, err := store.ListRecent(ctx, 100)
	if err != nil {
		fmt.Printf("Failed to list journal: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d journal entries:\n", len(entries))
	for _, e := range entries {
		fmt.Printf("- %s %s %s amount=%s price=%s state=%s order=%s\n",
			e.UpdatedAt.Format("2006-01-02 15:04:05"), e.Operation, e.InstrumentName, e.Amount, e.Price, e.State, e.OrderID)
		if e.ErrorKind != "" {
			fmt.Printf("  ❌ %s: %s\n", e.ErrorKind, e.ErrorMessage)
		}
		if e.State == "unknown" {
			fmt.Printf("  ⚠️ outcome unknown, reconcile with get_order_state_by_label label=%s\n", e.Label)
		}
	}
}
