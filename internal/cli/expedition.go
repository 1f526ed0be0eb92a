package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/navigator"
	"github.com/ppiankov/trawler/internal/parity"
	"github.com/ppiankov/trawler/internal/worker"
)

var expeditionEvaluate bool

// expeditionCmd runs one expedition from a domain spec file.
var expeditionCmd = &cobra.Command{
	Use:   "expedition <spec.yaml>",
	Short: "Run one expedition for a domain",
	Long: `Run a full expedition for the domain described by a spec file:
collect the listed sources, extract facts, synthesize scenarios, and
validate the catch. With --evaluate, a deployed catch is immediately
measured against the proxy and the trust registry updated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := worker.LoadSpec(args[0])
		if err != nil {
			return err
		}

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		nav, err := a.navigator()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		catch, runErr := nav.Run(ctx, *spec)
		printCatch(catch)
		if runErr != nil {
			return runErr
		}

		if expeditionEvaluate && catch.State == model.StateDeployed {
			return evaluateCatch(ctx, a, catch)
		}
		return nil
	},
}

// expeditionListCmd shows every persisted expedition and where it stands.
var expeditionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted expeditions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ids, err := navigator.List(cfg.Navigator.StateDir)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no persisted expeditions")
			return nil
		}
		for _, id := range ids {
			catch, err := navigator.Load(cfg.Navigator.StateDir, id)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("%s  %-12s %-11s cycles=%d  updated %s\n",
				catch.ID, catch.Domain, catch.State, catch.Cycles(),
				catch.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// expeditionResumeCmd continues an expedition interrupted before a terminal
// state. The catch keeps its id and validation history; committed fact
// batches replay through their idempotency records.
var expeditionResumeCmd = &cobra.Command{
	Use:   "resume <catch-id> <spec.yaml>",
	Short: "Resume an interrupted expedition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := worker.LoadSpec(args[1])
		if err != nil {
			return err
		}

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		nav, err := a.navigator()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		catch, runErr := nav.Resume(ctx, *spec, args[0])
		printCatch(catch)
		if runErr != nil {
			return runErr
		}

		if expeditionEvaluate && catch.State == model.StateDeployed {
			return evaluateCatch(ctx, a, catch)
		}
		return nil
	},
}

// evaluateCatch runs the parity gate for a freshly deployed catch and
// records the outcome in the trust registry.
func evaluateCatch(ctx context.Context, a *app, catch *model.Catch) error {
	tasks := parity.TasksFromScenarios(catch.Scenarios)

	evaluator := parity.New(nil, a.cfg.Parity, a.logger)
	proxySide := &proxyAnswerer{proxy: a.proxy, domain: catch.Domain}
	candidate := &catchAnswerer{facts: a.store, domain: catch.Domain}

	result, err := evaluator.Evaluate(ctx, catch.Domain, catch.ID, tasks, proxySide, candidate)
	if err != nil {
		return err
	}

	replace := evaluator.ShouldReplace(result)
	if err := a.registry.RecordEvaluation(ctx, result, replace); err != nil {
		return err
	}

	// The shortfall breakdown rides with the catch so the next expedition
	// over this domain knows where parity broke.
	catch.Parity = result
	if err := navigator.Save(a.cfg.Navigator.StateDir, catch); err != nil {
		a.logger.Warnw("Catch state update failed", "catch", catch.ID, "error", err)
	}

	fmt.Printf("\nParity: %.3f over %d tasks\n", result.Score, result.TaskCount)
	if replace {
		fmt.Printf("Routing for %q now targets catch %s\n", catch.Domain, catch.ID)
	} else {
		fmt.Printf("Routing for %q stays on the proxy\n", catch.Domain)
		for _, ts := range parity.Shortfall(result) {
			fmt.Printf("  behind on %s: proxy %.2f, candidate %.2f\n", ts.TaskID, ts.ProxyScore, ts.CandidateScore)
		}
	}
	return nil
}

func printCatch(catch *model.Catch) {
	if catch == nil {
		return
	}
	fmt.Printf("Catch %s (%s): %s\n", catch.ID, catch.Domain, catch.State)
	fmt.Printf("  facts committed: %d\n", len(catch.FactIDs))
	for _, cycle := range catch.History {
		fmt.Printf("  cycle %d: %d/%d passed (%.0f%%)\n",
			cycle.Number, cycle.Passed, cycle.Executed, cycle.PassRate*100)
	}
	if catch.LastGap != nil && len(catch.LastGap.MissingCapabilities) > 0 {
		fmt.Printf("  missing capabilities: %v\n", catch.LastGap.MissingCapabilities)
	}
}

func init() {
	expeditionCmd.Flags().BoolVar(&expeditionEvaluate, "evaluate", false, "run the parity gate after a successful deploy")
	expeditionResumeCmd.Flags().BoolVar(&expeditionEvaluate, "evaluate", false, "run the parity gate after a successful deploy")
	expeditionCmd.AddCommand(expeditionListCmd)
	expeditionCmd.AddCommand(expeditionResumeCmd)
	rootCmd.AddCommand(expeditionCmd)
}
