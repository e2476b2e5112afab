package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/report"
	"github.com/xkilldash9x/waldo-cli/internal/runner"
	"github.com/xkilldash9x/waldo-cli/internal/store"
	"github.com/xkilldash9x/waldo-cli/pkg/observability"
)

// runStore is the slice of the store the report command reads. It is
// an interface so tests can serve history without a database.
type runStore interface {
	GetRun(ctx context.Context, runID string) (*schemas.RunManifest, error)
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
}

// storeOpener opens the run-history store. The production opener dials
// Postgres; tests inject a stub.
type storeOpener interface {
	Open(ctx context.Context, dsn string, logger *zap.Logger) (runStore, func(), error)
}

type pgStoreOpener struct{}

func (pgStoreOpener) Open(ctx context.Context, dsn string, logger *zap.Logger) (runStore, func(), error) {
	st, err := store.Connect(ctx, dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(opener storeOpener) *cobra.Command {
	var (
		runID     string
		list      bool
		limit     int
		follow    bool
		fromStart bool
		format    string
		output    string
	)

	reportCmd := &cobra.Command{
		Use:   "report [run-dir | manifest.json]",
		Short: "Renders a finished run, follows a live one, or lists history",
		Long: `Report turns a run's manifest into an HTML or JUnit document. Point it
at a run directory (or the manifest.json inside one), or at a run saved
in the store with --run.

With --follow it tails the run's live event stream instead, printing
verdicts as they land until the run finishes. With --list it prints
recent run history from the store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			switch {
			case list:
				return listRuns(ctx, logger, cfg, opener, limit, cmd.OutOrStdout())
			case runID != "":
				return reportStoredRun(ctx, logger, cfg, opener, runID, format, output)
			case len(args) == 0:
				return fmt.Errorf("pass a run directory or manifest path, or use --run / --list")
			case follow:
				opts := report.FollowOptions{FromStart: fromStart}
				return report.Follow(ctx, resolveStream(args[0]), cmd.OutOrStdout(), opts, logger)
			default:
				path := resolveManifest(args[0])
				m, err := report.LoadManifest(path)
				if err != nil {
					return err
				}
				return renderManifest(logger, m, format, output, filepath.Dir(path))
			}
		},
	}

	reportCmd.Flags().StringVar(&runID, "run", "", "Render a run saved in the store instead of one on disk.")
	reportCmd.Flags().BoolVar(&list, "list", false, "List recent runs from the store.")
	reportCmd.Flags().IntVar(&limit, "limit", 20, "Number of runs --list shows.")
	reportCmd.Flags().BoolVar(&follow, "follow", false, "Tail the run's live event stream instead of rendering.")
	reportCmd.Flags().BoolVar(&fromStart, "from-start", true, "With --follow, replay events already in the stream.")
	reportCmd.Flags().StringVarP(&format, "format", "f", "html", "Report format: 'html' or 'junit'.")
	reportCmd.Flags().StringVarP(&output, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")

	return reportCmd
}

// reportStoredRun loads one run's manifest from the store and renders
// it. Screenshot links are left as recorded since the artifacts are
// not local.
func reportStoredRun(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	opener storeOpener,
	runID, format, output string,
) error {
	st, cleanup, err := openStore(ctx, logger, cfg, opener)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	m, err := st.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", runID, err)
	}
	return renderManifest(logger, m, format, output, "")
}

// listRuns prints recent run history as a table.
func listRuns(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	opener storeOpener,
	limit int,
	out io.Writer,
) error {
	st, cleanup, err := openStore(ctx, logger, cfg, opener)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION\tSTEPS\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			r.RunID,
			r.Status,
			r.StartedAt.Format(time.RFC3339),
			r.Duration.Round(time.Millisecond),
			r.Totals.Steps,
			r.Totals.Failed,
		)
	}
	return w.Flush()
}

func openStore(ctx context.Context, logger *zap.Logger, cfg *config.Config, opener storeOpener) (runStore, func(), error) {
	if !cfg.Store.Enabled() {
		return nil, nil, fmt.Errorf("no store configured; set store.dsn or WALDO_STORE_DSN")
	}
	st, cleanup, err := opener.Open(ctx, cfg.Store.DSN, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return st, cleanup, nil
}

// renderManifest writes one manifest through the chosen renderer.
func renderManifest(logger *zap.Logger, m *schemas.RunManifest, format, output, artifactsDir string) error {
	renderer, err := report.New(format, output, artifactsDir, logger)
	if err != nil {
		return err
	}
	if err := renderer.Render(m); err != nil {
		return fmt.Errorf("rendering %s report: %w", format, err)
	}
	if output != "" && output != "stdout" {
		logger.Info("Report written.", zap.String("path", output), zap.String("format", format))
	}
	return nil
}

// resolveManifest accepts either a manifest file or the run directory
// holding one.
func resolveManifest(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, runner.ManifestName)
	}
	return path
}

// resolveStream accepts either a stream file or the run directory
// holding one.
func resolveStream(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, runner.StreamName)
	}
	return path
}
