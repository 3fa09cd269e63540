package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vietddude/genledger/internal/core/config"
	"github.com/vietddude/genledger/internal/core/tier"
	"github.com/vietddude/genledger/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status [account_id]",
	Short: "Show the balance and recent ledger entries for an account",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	accountID := args[0]

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

	balance, err := postgres.NewBalanceRepo(db).Get(ctx, accountID)
	if err != nil {
		slog.Error("Failed to load balance", "error", err)
		os.Exit(1)
	}
	if balance == nil {
		fmt.Printf("Account %s has no balance row yet (starts at the %s tier on first use)\n", accountID, tier.Floor())
		return
	}

	fmt.Printf("Account:  %s\n", balance.AccountID)
	fmt.Printf("Tier:     %s (capacity %d)\n", balance.Tier, tier.Capacity(balance.Tier))
	fmt.Printf("Balance:  %d credits\n", balance.Balance)
	fmt.Printf("Regen at: %s\n\n", balance.LastRegenerationAt.Format("2006-01-02 15:04:05"))

	entries, err := postgres.NewLedgerRepo(db).ListByAccount(ctx, accountID, 20)
	if err != nil {
		slog.Error("Failed to load ledger entries", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CREATED\tKIND\tAMOUNT\tBALANCE\tSOURCE")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%+d\t%d\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Amount, e.BalanceAfter, e.Source)
	}
	_ = w.Flush()
}
