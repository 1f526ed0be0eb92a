package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trawler/internal/model"
)

// registryCmd groups trust registry operations.
var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and manage the trust registry",
}

var registryStatusCmd = &cobra.Command{
	Use:   "status <domain>",
	Short: "Show a domain's routing and parity history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.registry.Lookup(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Domain:  %s\n", entry.Domain)
		fmt.Printf("Routing: %s\n", entry.Routing)
		if entry.Routing == model.RouteReal {
			fmt.Printf("Catch:   %s\n", entry.CatchID)
		}
		if entry.CandidateID != "" && entry.CandidateID != entry.CatchID {
			fmt.Printf("Candidate: %s (awaiting parity evaluation)\n", entry.CandidateID)
		}
		if !entry.LastUpdated.IsZero() {
			fmt.Printf("Updated: %s\n", entry.LastUpdated.Format("2006-01-02 15:04:05 MST"))
		}
		if len(entry.History) > 0 {
			fmt.Println("\nParity history:")
			for _, sample := range entry.History {
				fmt.Printf("  %s  %.3f over %d tasks  (catch %s)\n",
					sample.EvaluatedAt.Format("2006-01-02"), sample.Score, sample.TaskCount, sample.CatchID)
			}
		}
		return nil
	},
}

var revertReason string

var registryRevertCmd = &cobra.Command{
	Use:   "revert <domain>",
	Short: "Route a domain back to the proxy",
	Long: `Withdraw a deployed catch: routing for the domain returns to the
external proxy. Parity history is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.registry.Revert(context.Background(), args[0], revertReason); err != nil {
			return err
		}
		fmt.Printf("Routing for %q reverted to the proxy\n", args[0])
		return nil
	},
}

func init() {
	registryRevertCmd.Flags().StringVar(&revertReason, "reason", "manual", "why the catch is being withdrawn")
	registryCmd.AddCommand(registryStatusCmd)
	registryCmd.AddCommand(registryRevertCmd)
	rootCmd.AddCommand(registryCmd)
}
