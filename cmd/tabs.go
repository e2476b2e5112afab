package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/internal/browser"
	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/engine"
	"github.com/xkilldash9x/waldo-cli/pkg/observability"
)

// newTabsCmd creates and configures the `tabs` command.
func newTabsCmd() *cobra.Command {
	tabsCmd := &cobra.Command{
		Use:   "tabs [urls...]",
		Short: "Opens pages and lists the tabs the automation engine sees",
		Long: `Tabs is a smoke check for the browser integration. It launches the
configured browser, opens each URL as a tab of one shared context, and
prints the tab registry the engine operates on, in the same order
tab-switch indexes resolve against.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			b, err := browser.Launch(ctx, logger, cfg.Browser)
			if err != nil {
				return fmt.Errorf("launching browser: %w", err)
			}
			defer shutdownBrowser(b, logger)

			sess, err := b.NewPage(ctx)
			if err != nil {
				return fmt.Errorf("opening page: %w", err)
			}
			defer func() {
				if err := b.DisposePage(ctx, sess); err != nil {
					logger.Debug("Page disposal failed.", zap.Error(err))
				}
			}()

			p := engine.NewPage(ctx, sess, engineOptions(cfg.Engine), logger)

			if len(args) > 0 {
				if err := p.Goto(ctx, args[0]); err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				for _, url := range args[1:] {
					if err := openTab(ctx, p, url); err != nil {
						return fmt.Errorf("opening %s: %w", url, err)
					}
				}
			}

			tabs, err := p.GetTabs(ctx)
			if err != nil {
				return fmt.Errorf("listing tabs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tTARGET\tTITLE\tURL")
			for i, tab := range tabs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, tab.ID, tab.Title, tab.URL)
			}
			return w.Flush()
		},
	}
	return tabsCmd
}

// openTab opens url in a new tab of the page's context and waits for
// the target to appear. Focus stays on the original page.
func openTab(ctx context.Context, p *engine.Page, url string) error {
	expr := fmt.Sprintf("window.open(%q, '_blank')", url)
	if _, err := p.Evaluate(ctx, expr); err != nil {
		return err
	}
	_, err := p.WaitForNewTab(ctx, 0)
	return err
}

// engineOptions maps the engine section of the config onto the
// engine's option struct.
func engineOptions(c config.EngineConfig) engine.Options {
	return engine.Options{
		SettleDelay:       c.SettleDelay,
		PollInterval:      c.PollInterval,
		DefaultTimeout:    c.DefaultTimeout,
		NavigationTimeout: c.NavigationTimeout,
		SwitchSettle:      c.SwitchSettle,
		SlowMo:            c.SlowMo,
	}
}
