package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trawler/internal/worker"
)

var batchConcurrency int

// batchCmd runs many expeditions from a manifest of spec files.
var batchCmd = &cobra.Command{
	Use:   "batch <manifest>",
	Short: "Run expeditions for every spec in a manifest",
	Long: `Run one expedition per domain spec listed in the manifest file
(one spec path per line, # for comments). Expeditions run concurrently;
the knowledge store serializes overlapping writes itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		nav, err := a.navigator()
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = a.cfg.Concurrency.Expeditions
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		processor := worker.NewBatchProcessor(nav, concurrency)
		results, err := processor.ProcessManifest(ctx, args[0])
		if err != nil {
			return err
		}

		failed := 0
		for _, res := range results {
			printCatch(res.Catch)
			if res.Error != nil {
				failed++
				fmt.Printf("  error: %v\n", res.Error)
			}
		}
		fmt.Printf("\n%d expeditions, %d failed\n", len(results), failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d expeditions failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent expeditions (default from config)")
	rootCmd.AddCommand(batchCmd)
}
