package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vietddude/genledger/internal/core/config"
	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage/postgres"
	"github.com/vietddude/genledger/internal/ledger"
)

var grantReason string

var grantCmd = &cobra.Command{
	Use:   "grant [account_id] [amount]",
	Short: "Grant bonus credits to an account",
	Args:  cobra.ExactArgs(2),
	Run:   runGrant,
}

func init() {
	grantCmd.Flags().StringVar(&grantReason, "reason", "manual", "reason recorded on the ledger entry")
	rootCmd.AddCommand(grantCmd)
}

func runGrant(cmd *cobra.Command, args []string) {
	accountID := args[0]
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid amount: %v\n", err)
		os.Exit(1)
	}

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

	credits := ledger.NewService(
		postgres.NewBalanceRepo(db),
		postgres.NewLedgerRepo(db),
		postgres.NewSubscriptionRepo(db),
	)

	granted, err := credits.Grant(ctx, accountID, amount, domain.EntryEarnBonus, "admin_grant", "", map[string]string{"reason": grantReason})
	if err != nil {
		slog.Error("Failed to grant credits", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Granted %d credits to %s\n", granted, accountID)
}
