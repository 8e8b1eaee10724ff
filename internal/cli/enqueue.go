package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vietddude/sentinel/internal/core/config"
	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/redis"
	"github.com/vietddude/sentinel/internal/infra/storage/file"
)

var (
	enqueueChain    string
	enqueueRawTx    string
	enqueueLabel    string
	enqueueMinGwei  uint64
	enqueueViaRedis bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add a pre-signed transaction to the pending queue",
	Long: `Enqueue appends one signed raw transaction to the queue document, or
pushes it onto the redis intake queue of a running sentinel with --redis.`,
	Run: runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueChain, "chain", "", "chain name (required)")
	enqueueCmd.Flags().StringVar(&enqueueRawTx, "raw-tx", "", "hex-encoded signed transaction (required)")
	enqueueCmd.Flags().StringVar(&enqueueLabel, "label", "", "human-readable label")
	enqueueCmd.Flags().Uint64Var(&enqueueMinGwei, "min-base-fee", 0, "fire when base fee is at or below this, in gwei")
	enqueueCmd.Flags().BoolVar(&enqueueViaRedis, "redis", false, "push to the redis intake queue instead of the queue document")
	_ = enqueueCmd.MarkFlagRequired("chain")
	_ = enqueueCmd.MarkFlagRequired("raw-tx")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	label := enqueueLabel
	if label == "" {
		label = "cli-" + uuid.NewString()[:8]
	}
	minGwei := enqueueMinGwei
	if minGwei == 0 {
		// Per-item thresholds default to the global ceiling.
		minGwei = cfg.MaxFeeGwei
	}

	item := domain.QueueItem{
		Chain:          enqueueChain,
		RawTx:          enqueueRawTx,
		Label:          label,
		MinBaseFeeGwei: minGwei,
	}

	ctx := context.Background()

	if enqueueViaRedis {
		if cfg.Redis.URL == "" {
			slog.Error("No redis URL configured")
			os.Exit(1)
		}
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = client.Close()
		}()

		if err := client.PushItem(ctx, item); err != nil {
			slog.Error("Failed to push intake item", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Pushed %s to intake queue (fingerprint %s)\n", label, item.Fingerprint())
		return
	}

	// Append directly to the queue document: load, check duplicates, save.
	repo := file.NewQueueRepo(cfg.QueueFile)
	items, err := repo.Load(ctx)
	if err != nil {
		slog.Error("Failed to load queue", "error", err)
		os.Exit(1)
	}

	fp := item.Fingerprint()
	for _, queued := range items {
		if queued.Fingerprint() == fp {
			slog.Error("Item already queued", "fingerprint", fp, "label", queued.Label)
			os.Exit(1)
		}
	}

	items = append(items, item)
	if err := repo.Save(ctx, items); err != nil {
		slog.Error("Failed to save queue", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Queued %s on %s (fingerprint %s, pending %d)\n",
		label, item.Chain, fp, len(items))
}
