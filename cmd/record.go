package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/internal/browser"
	"github.com/xkilldash9x/waldo-cli/internal/recorder"
	"github.com/xkilldash9x/waldo-cli/pkg/observability"
)

// newRecordCmd creates and configures the `record` command.
func newRecordCmd() *cobra.Command {
	var (
		output string
		listen string
	)

	recordCmd := &cobra.Command{
		Use:   "record [url]",
		Short: "Records browser interactions as a step script",
		Long: `Record opens a browser window, watches what you do in it, and writes
the session back out as a step script that 'waldo run' can replay.
Clicks, typing, selections and navigations coalesce into one step each.

While recording, a read-only live preview of the page is served over
HTTP so someone without access to the desktop can watch along.

Press Ctrl-C to stop recording and save the script.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Recorder.ListenAddr = listen
			}
			// There is nothing to record in a browser nobody can click.
			cfg.Browser.Headless = false

			b, err := browser.Launch(ctx, logger, cfg.Browser)
			if err != nil {
				return fmt.Errorf("launching browser: %w", err)
			}
			defer shutdownBrowser(b, logger)

			sess, err := b.NewPage(ctx)
			if err != nil {
				return fmt.Errorf("opening page: %w", err)
			}

			rec, err := recorder.New(sess, cfg.Recorder, logger)
			if err != nil {
				return err
			}
			// Start before navigating so the capture script is already
			// registered when the first document loads.
			if err := rec.Start(ctx); err != nil {
				return err
			}
			defer rec.Close()

			if len(args) == 1 {
				if err := sess.Navigate(ctx, args[0]); err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				if err := sess.WaitForLoad(ctx); err != nil {
					logger.Warn("Start page did not finish loading.", zap.Error(err))
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recording. Live preview at %s\n", rec.PreviewURL())
			fmt.Fprintln(out, "Interact with the browser window, then press Ctrl-C to finish.")

			<-ctx.Done()

			if err := rec.Close(); err != nil {
				logger.Warn("Recorder shutdown reported an error.", zap.Error(err))
			}
			// Release the page so browser shutdown does not wait out
			// its session grace period.
			if err := b.DisposePage(ctx, sess); err != nil {
				logger.Debug("Page disposal failed.", zap.Error(err))
			}

			script := rec.Script()
			if script == "" {
				fmt.Fprintln(out, "\nNothing was recorded; no script written.")
				return nil
			}

			header := fmt.Sprintf("# recorded %s\n", time.Now().Format(time.RFC3339))
			if err := os.WriteFile(output, []byte(header+script), 0o644); err != nil {
				return fmt.Errorf("writing script: %w", err)
			}
			fmt.Fprintf(out, "\nSaved %d steps to %s\n", len(rec.Lines()), output)
			return nil
		},
	}

	recordCmd.Flags().StringVarP(&output, "output", "o", "", "File to write the recorded script to. (Required)")
	recordCmd.Flags().StringVar(&listen, "listen", "", "Address for the live preview server. (Overrides config/env)")
	_ = recordCmd.MarkFlagRequired("output")

	return recordCmd
}
