package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/genledger/internal/core/config"
	"github.com/vietddude/genledger/internal/core/worker"
	"github.com/vietddude/genledger/internal/infra/storage/postgres"
	"github.com/vietddude/genledger/internal/ledger"
)

var regenCmd = &cobra.Command{
	Use:   "regen",
	Short: "Run a single regeneration sweep over all accounts",
	Run:   runRegen,
}

func init() {
	rootCmd.AddCommand(regenCmd)
}

func runRegen(cmd *cobra.Command, args []string) {
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

	regenerator := worker.NewRegenerator(0, balances, credits)
	if err := regenerator.Sweep(ctx); err != nil {
		slog.Error("Sweep finished with errors", "error", err)
		os.Exit(1)
	}

	fmt.Println("Regeneration sweep completed")
}
