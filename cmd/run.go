package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/browser"
	"github.com/xkilldash9x/waldo-cli/internal/report"
	"github.com/xkilldash9x/waldo-cli/internal/runner"
	"github.com/xkilldash9x/waldo-cli/internal/store"
	"github.com/xkilldash9x/waldo-cli/pkg/observability"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		output      string
		format      string
		concurrency int
		failFast    bool
		headful     bool
	)

	runCmd := &cobra.Command{
		Use:   "run [scripts...]",
		Short: "Runs step script suites against a fresh browser",
		Long: `Run executes one or more step scripts, each in its own isolated
browser context. Step verdicts stream to the terminal as they land, and
every run leaves a directory of artifacts behind: the manifest, the
JSONL event stream, and a screenshot per failed step.

The command exits non-zero when any suite fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			// Flags beat the config file, which beats defaults. Only
			// flags the user actually set may override.
			if cmd.Flags().Changed("concurrency") {
				cfg.Runner.Concurrency = concurrency
			}
			if cmd.Flags().Changed("fail-fast") {
				cfg.Runner.FailFast = failFast
			}
			if cmd.Flags().Changed("headful") {
				cfg.Browser.Headless = !headful
			}

			logger.Info("Starting run.",
				zap.Strings("scripts", args),
				zap.Int("concurrency", cfg.Runner.Concurrency),
				zap.Bool("fail_fast", cfg.Runner.FailFast),
				zap.Bool("headless", cfg.Browser.Headless),
			)

			// 1. Launch the browser shared by all suites.
			b, err := browser.Launch(ctx, logger, cfg.Browser)
			if err != nil {
				return fmt.Errorf("launching browser: %w", err)
			}
			defer shutdownBrowser(b, logger)

			// 2. Execute the suites, mirroring verdicts to the terminal.
			r, err := runner.New(cfg, runner.NewBrowserPages(b), logger)
			if err != nil {
				return err
			}
			r.MirrorStream(report.NewConsole(cmd.OutOrStdout()))

			manifest, err := r.Run(ctx, args)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by signal.")
					return fmt.Errorf("run aborted")
				}
				return err
			}

			// 3. Persist history when a store is configured. The run
			// itself succeeded; losing history is worth a warning, not
			// a failed exit.
			if cfg.Store.Enabled() {
				if err := saveRun(ctx, cfg.Store.DSN, manifest, logger); err != nil {
					logger.Warn("Failed to save run to the store.", zap.Error(err))
				}
			}

			runDir, err := r.RunDir(manifest.RunID)
			if err != nil {
				return err
			}

			// 4. Optional report straight from this run.
			if format != "" {
				renderer, err := report.New(format, output, runDir, logger)
				if err != nil {
					return err
				}
				if err := renderer.Render(manifest); err != nil {
					return fmt.Errorf("rendering %s report: %w", format, err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nRun %s finished: %d passed, %d failed, %d skipped.\n",
				manifest.RunID, manifest.Totals.Passed, manifest.Totals.Failed, manifest.Totals.Skipped)
			fmt.Fprintf(out, "Artifacts: %s\n", runDir)
			if format == "" {
				fmt.Fprintf(out, "To render a report, run: waldo report %s --format html --output report.html\n", runDir)
			}

			if manifest.Failed() {
				return fmt.Errorf("%d of %d steps failed", manifest.Totals.Failed, manifest.Totals.Steps)
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&output, "output", "o", "", "Report file path. Defaults to stdout when --format is set.")
	runCmd.Flags().StringVarP(&format, "format", "f", "", "Also render a report: 'html' or 'junit'.")
	runCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Number of suites to run in parallel. (Overrides config/env)")
	runCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Cancel remaining suites after the first failure. (Overrides config/env)")
	runCmd.Flags().BoolVar(&headful, "headful", false, "Show the browser window while the run executes.")

	return runCmd
}

// saveRun connects to the configured store, makes sure the schema
// exists, and records the manifest.
func saveRun(ctx context.Context, dsn string, m *schemas.RunManifest, logger *zap.Logger) error {
	st, err := store.Connect(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := st.SaveRun(ctx, m); err != nil {
		return err
	}
	logger.Info("Run saved to store.", zap.String("run_id", m.RunID))
	return nil
}

// shutdownBrowser terminates the browser under a fresh deadline so
// teardown still runs when the command's context is already canceled.
func shutdownBrowser(b *browser.Browser, logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Browser shutdown reported an error.", zap.Error(err))
	}
}
