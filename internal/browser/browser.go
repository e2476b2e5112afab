// Package browser owns the headless Chrome process and hands out
// protocol sessions bound to individual tabs. Each page lives in its own
// isolated browser context, so concurrently running scripts never see
// each other's tabs.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/internal/config"
)

const launchTimeout = 30 * time.Second

// Browser handles the lifecycle of the headless browser process. All page
// sessions derive from its root context; the root itself stays parked on
// the initial blank tab and is never handed to callers.
type Browser struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	// wg tracks attached sessions for a graceful shutdown.
	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Launch starts the browser process and verifies it is responsive.
func Launch(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Browser{
		logger: logger.Named("browser"),
		cfg:    cfg,
	}

	b.logger.Info("Initializing browser allocator...",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.Viewport.Width),
		zap.Int("viewport_height", cfg.Viewport.Height),
	)

	opts := DefaultAllocatorOptions(cfg)
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(ctx, opts...)

	ctxOpts := []chromedp.ContextOption{}
	if cfg.Debug {
		sugar := b.logger.Sugar()
		ctxOpts = append(ctxOpts, chromedp.WithLogf(sugar.Debugf), chromedp.WithErrorf(sugar.Errorf))
	}
	b.rootCtx, b.rootCancel = chromedp.NewContext(b.allocCtx, ctxOpts...)

	// The first Run starts the process and attaches the root context to the
	// initial blank tab. Bound by its own timeout so a wedged binary does
	// not hang startup forever.
	startCtx, startDone := context.WithTimeout(ctx, launchTimeout)
	defer startDone()

	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(b.rootCtx)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			b.rootCancel()
			b.allocCancel()
			return nil, fmt.Errorf("browser failed to start or respond: %w", err)
		}
	case <-startCtx.Done():
		b.rootCancel()
		b.allocCancel()
		return nil, fmt.Errorf("browser did not become responsive within %s", launchTimeout)
	}

	b.logger.Info("Browser launched successfully and is responsive.")
	return b, nil
}

// DefaultAllocatorOptions assembles the exec allocator flags for a
// configurable automation browser instance.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// A false bool drops the flag from the command line, overriding
		// the library default that advertises automation to the page.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		// Scripts open tabs through window.open; the blocker would
		// silently eat them.
		chromedp.Flag("disable-popup-blocking", true),
	)

	if cfg.IgnoreTLSErrors {
		opts = append(opts,
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-insecure-localhost", true),
		)
	}
	if cfg.DisableCache {
		opts = append(opts,
			chromedp.Flag("disable-cache", true),
			chromedp.Flag("disk-cache-size", "0"),
			chromedp.Flag("media-cache-size", "0"),
		)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}

	// Custom arguments from the config file.
	for _, arg := range cfg.Args {
		name, value := splitArg(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}

	// Flags required for running inside containers (e.g. Docker on Linux).
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// splitArg translates one command-line style argument into a flag name and
// value. "--key=value" becomes (key, "value"); bare "--switch" becomes
// (switch, true).
func splitArg(arg string) (string, interface{}) {
	parts := strings.SplitN(arg, "=", 2)
	name := strings.TrimPrefix(parts[0], "--")
	if len(parts) == 2 {
		return name, parts[1]
	}
	return name, true
}

// browserExec returns ctx with the browser-wide command executor attached.
// Target lifecycle commands must run on the browser connection, not on a
// page session.
func (b *Browser) browserExec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(b.rootCtx).Browser)
}

// NewPage creates an isolated browser context with a single blank tab and
// attaches a session to it. The caller owns the returned session and
// should hand it back through DisposePage when the work is done.
func (b *Browser) NewPage(ctx context.Context) (*CDPSession, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	b.mu.Unlock()

	browserContextID, err := target.CreateBrowserContext().Do(b.browserExec(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(browserContextID).
		Do(b.browserExec(ctx))
	if err != nil {
		b.bestEffortDisposeContext(browserContextID)
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	sess, err := b.attach(targetID, browserContextID)
	if err != nil {
		b.bestEffortDisposeContext(browserContextID)
		return nil, err
	}
	return sess, nil
}

// attach opens a new protocol session bound to an existing target.
func (b *Browser) attach(targetID target.ID, browserContextID cdp.BrowserContextID) (*CDPSession, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.rootCtx, chromedp.WithTargetID(targetID))

	setup := []chromedp.Action{}
	if b.cfg.DisableCache {
		setup = append(setup, disableCacheAction())
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to attach to target %s: %w", targetID, err)
	}

	sess := newCDPSession(b, tabCtx, tabCancel, targetID, browserContextID)

	b.wg.Add(1)
	sess.onClose = func() {
		b.wg.Done()
		b.logger.Debug("Session released.", zap.String("session_id", sess.ID()))
	}

	b.logger.Debug("Session attached.",
		zap.String("session_id", sess.ID()),
		zap.String("target_id", string(targetID)),
	)
	return sess, nil
}

// DisposePage tears down the isolated browser context a page was created
// in, closing every tab that context has accumulated. The session itself
// is closed first if the caller has not already done so.
func (b *Browser) DisposePage(ctx context.Context, sess *CDPSession) error {
	if sess == nil {
		return nil
	}
	_ = sess.Close()

	if sess.browserContextID == "" || b.rootCtx.Err() != nil {
		return nil
	}
	// Disposal must land even when the surrounding operation was already
	// canceled, so only ctx's values ride along.
	timeoutCtx, cancel := context.WithTimeout(detach(ctx), 10*time.Second)
	defer cancel()
	if err := target.DisposeBrowserContext(sess.browserContextID).Do(b.browserExec(timeoutCtx)); err != nil {
		return fmt.Errorf("failed to dispose browser context: %w", err)
	}
	return nil
}

func (b *Browser) bestEffortDisposeContext(id cdp.BrowserContextID) {
	if b.rootCtx.Err() != nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(b.browserExec(cleanupCtx)); err != nil {
		b.logger.Debug("Failed best-effort cleanup of orphaned browser context.",
			zap.String("browser_context_id", string(id)), zap.Error(err))
	}
}

// Shutdown waits for active sessions to close and then terminates the
// browser process. Once the ctx deadline passes the process is torn down
// regardless of stragglers.
func (b *Browser) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("Browser shutdown initiated. Waiting for active sessions to close...")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("shutdown grace period expired with sessions still open: %w", ctx.Err())
		b.logger.Warn("Forcing browser termination with sessions still attached.")
	}

	b.rootCancel()
	b.allocCancel()
	b.logger.Info("Browser process terminated.")
	return waitErr
}
