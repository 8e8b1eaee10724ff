package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/sentinel/internal/core/config"
	"github.com/vietddude/sentinel/internal/infra/storage/file"
	"github.com/vietddude/sentinel/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending items and broadcast records",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	items, err := file.NewQueueRepo(cfg.QueueFile).Load(ctx)
	if err != nil {
		slog.Error("Failed to load queue", "error", err)
		os.Exit(1)
	}
	records, err := file.NewLedgerRepo(cfg.StateFile).Load(ctx)
	if err != nil {
		slog.Error("Failed to load ledger", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)

	fmt.Printf("Pending items: %d\n", len(items))
	_, _ = fmt.Fprintln(w, "CHAIN\tLABEL\tMIN GWEI\tATTEMPTS")
	for _, item := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n",
			item.Chain, item.Label, item.MinBaseFeeGwei, item.Attempts)
	}
	_ = w.Flush()

	fmt.Printf("\nBroadcast records: %d\n", len(records))
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "FINGERPRINT\tTX HASH\tBROADCAST AT")
	for fp, rec := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			fp, rec.TxHash, time.Unix(rec.BroadcastAt, 0).UTC().Format(time.RFC3339))
	}
	_ = w.Flush()

	if cfg.Database.URL == "" {
		return
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	entries, err := postgres.NewHistoryRepo(db).Recent(ctx, 20)
	if err != nil {
		slog.Error("Failed to query broadcast history", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\nRecent archived broadcasts: %d\n", len(entries))
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tLABEL\tTX HASH\tBROADCAST AT")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Chain, e.Label, e.TxHash, time.Unix(e.BroadcastAt, 0).UTC().Format(time.RFC3339))
	}
	_ = w.Flush()
}
