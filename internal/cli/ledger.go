package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trawler/internal/ledger"
)

var (
	ledgerDomain string
	ledgerSource string
)

// ledgerCmd queries the provenance ledger.
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Query the provenance ledger",
	Long: `Query the append-only provenance ledger. Every committed fact has
one entry tracing it back to its source hash and extractor version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var entries []ledger.Entry
		switch {
		case ledgerSource != "":
			entries, err = a.ledger.BySource(ledgerSource)
		case ledgerDomain != "":
			entries, err = a.ledger.ByDomain(ledgerDomain)
		default:
			return fmt.Errorf("pass --domain or --source to select entries")
		}
		if err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("%s  [%s]  %s %s %s  (conf %.2f, %s, source %.12s)\n",
				e.CommittedAt.Format("2006-01-02 15:04:05"),
				e.Domain, e.Subject, e.Predicate, e.Object,
				e.Confidence, e.Extractor, e.SourceHash)
		}
		fmt.Printf("%d entries\n", len(entries))
		return nil
	},
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerDomain, "domain", "", "entries for a domain")
	ledgerCmd.Flags().StringVar(&ledgerSource, "source", "", "entries for a source hash")
	rootCmd.AddCommand(ledgerCmd)
}
