package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/genledger/internal/core/config"
	"github.com/vietddude/genledger/internal/infra/storage/postgres"
	"github.com/vietddude/genledger/internal/ledger"
)

var downgradesCmd = &cobra.Command{
	Use:   "apply-downgrades",
	Short: "Apply every pending tier downgrade (billing-cycle boundary)",
	Run:   runDowngrades,
}

func init() {
	rootCmd.AddCommand(downgradesCmd)
}

func runDowngrades(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	balances := postgres.NewBalanceRepo(db)
	credits := ledger.NewService(balances, postgres.NewLedgerRepo(db), postgres.NewSubscriptionRepo(db))

	accounts, err := balances.ListAccountIDs(ctx)
	if err != nil {
		slog.Error("Failed to list accounts", "error", err)
		os.Exit(1)
	}

	applied := 0
	for _, accountID := range accounts {
		if err := credits.ApplyScheduledDowngrade(ctx, accountID); err != nil {
			slog.Warn("Failed to apply scheduled downgrade", "account", accountID, "error", err)
			continue
		}
		applied++
	}

	fmt.Printf("Processed %d accounts\n", applied)
}
