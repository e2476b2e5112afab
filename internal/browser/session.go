package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

var (
	// ErrSessionClosed is returned by session operations after Close.
	ErrSessionClosed = errors.New("session is closed")
	// ErrBrowserClosed is returned when a page is requested from a browser
	// that has already shut down.
	ErrBrowserClosed = errors.New("browser is closed")
)

// loadSettledExpr resolves once the current document's load event has
// fired, immediately if it already has.
const loadSettledExpr = `new Promise((resolve) => {
  if (document.readyState === "complete") { resolve(true); return; }
  window.addEventListener("load", () => resolve(true), { once: true });
})`

// CDPSession drives one tab over the DevTools protocol. It implements
// engine.ProtocolSession; the engine issues one command at a time, so no
// internal queueing is needed.
type CDPSession struct {
	id               string
	targetID         target.ID
	browserContextID cdp.BrowserContextID
	browser          *Browser
	logger           *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	dialogMu sync.Mutex
	onDialog func(engine.DialogRequest)

	bindingMu sync.Mutex
	bindings  map[string]func(payload string)

	mu       sync.Mutex
	isClosed bool
	onClose  func()
}

func newCDPSession(b *Browser, ctx context.Context, cancel context.CancelFunc, targetID target.ID, browserContextID cdp.BrowserContextID) *CDPSession {
	id := uuid.New().String()
	s := &CDPSession{
		id:               id,
		targetID:         targetID,
		browserContextID: browserContextID,
		browser:          b,
		logger:           b.logger.With(zap.String("session_id", id)),
		ctx:              ctx,
		cancel:           cancel,
		bindings:         make(map[string]func(string)),
	}
	chromedp.ListenTarget(ctx, s.eventListener)
	return s
}

// ID returns the session identifier used in logs.
func (s *CDPSession) ID() string { return s.id }

// TargetID returns the identifier of the tab this session is bound to.
func (s *CDPSession) TargetID() string { return string(s.targetID) }

// run executes actions against this session's tab. The session context
// carries the protocol connection; ctx contributes the operational
// deadline.
func (s *CDPSession) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	sessionCtx := s.ctx
	s.mu.Unlock()

	combined, cancel := combineContext(sessionCtx, ctx)
	defer cancel()
	return chromedp.Run(combined, actions...)
}

// Navigate loads the url and returns once the load event has fired.
func (s *CDPSession) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitForLoad blocks until the current document has finished loading.
func (s *CDPSession) WaitForLoad(ctx context.Context) error {
	return s.Evaluate(ctx, loadSettledExpr, nil)
}

// Evaluate runs expr in the page and unmarshals its JSON-safe result into
// out. A nil out discards the result.
func (s *CDPSession) Evaluate(ctx context.Context, expr string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
}

// DispatchMouse dispatches a single pointer event.
func (s *CDPSession) DispatchMouse(ctx context.Context, ev engine.MouseEvent) error {
	p := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y).
		WithButton(input.MouseButton(ev.Button))
	if ev.ClickCount > 0 {
		p = p.WithClickCount(int64(ev.ClickCount))
	}
	return s.run(ctx, p)
}

// DispatchKey dispatches a single keyboard event.
func (s *CDPSession) DispatchKey(ctx context.Context, ev engine.KeyEvent) error {
	p := input.DispatchKeyEvent(input.KeyType(ev.Type)).WithKey(ev.Key)
	if ev.Code != "" {
		p = p.WithCode(ev.Code)
	}
	if ev.Text != "" {
		p = p.WithText(ev.Text)
	}
	if ev.KeyCode != 0 {
		kc := int64(ev.KeyCode)
		p = p.WithWindowsVirtualKeyCode(kc).WithNativeVirtualKeyCode(kc)
	}
	return s.run(ctx, p)
}

// OnDialog registers the callback invoked whenever the page opens a
// javascript dialog. Replacing the callback does not re-subscribe the
// underlying protocol event.
func (s *CDPSession) OnDialog(fn func(engine.DialogRequest)) {
	s.dialogMu.Lock()
	s.onDialog = fn
	s.dialogMu.Unlock()
}

// ResolveDialog answers the currently open dialog.
func (s *CDPSession) ResolveDialog(ctx context.Context, accept bool, promptText string) error {
	return s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		p := page.HandleJavaScriptDialog(accept)
		if promptText != "" {
			p = p.WithPromptText(promptText)
		}
		return p.Do(c)
	}))
}

// ListTargets enumerates the open tabs of this session's browser context.
func (s *CDPSession) ListTargets(ctx context.Context) ([]engine.TargetInfo, error) {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	sessionCtx := s.ctx
	s.mu.Unlock()

	combined, cancel := combineContext(sessionCtx, ctx)
	defer cancel()

	infos, err := chromedp.Targets(combined)
	if err != nil {
		return nil, err
	}
	return pageTargets(infos, s.browserContextID), nil
}

// pageTargets filters raw target infos down to page-type targets of one
// browser context. Targets belonging to other contexts, workers and
// devtools surfaces are invisible to the engine.
func pageTargets(infos []*target.Info, browserContextID cdp.BrowserContextID) []engine.TargetInfo {
	out := make([]engine.TargetInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" || info.BrowserContextID != browserContextID {
			continue
		}
		out = append(out, engine.TargetInfo{
			ID:    string(info.TargetID),
			URL:   info.URL,
			Title: info.Title,
		})
	}
	return out
}

// AttachTarget opens an independent session bound to the given target.
func (s *CDPSession) AttachTarget(ctx context.Context, id string) (engine.ProtocolSession, error) {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	sess, err := s.browser.attach(target.ID(id), s.browserContextID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Close severs the protocol connection. The tab itself keeps running and
// can be re-attached later; disposing of tabs is the browser's job.
func (s *CDPSession) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	onClose := s.onClose
	s.mu.Unlock()

	s.cancel()
	if onClose != nil {
		onClose()
	}
	s.logger.Debug("Session detached.")
	return nil
}

// Screenshot captures the visible viewport as a PNG.
func (s *CDPSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// eventListener receives protocol events for this session's target.
// Listeners must never block or issue commands inline, so all real work
// moves to a goroutine.
func (s *CDPSession) eventListener(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		s.serveDialog(e)
	case *runtime.EventBindingCalled:
		s.bindingMu.Lock()
		fn := s.bindings[e.Name]
		s.bindingMu.Unlock()
		if fn != nil {
			go fn(e.Payload)
		}
	}
}

func (s *CDPSession) serveDialog(e *page.EventJavascriptDialogOpening) {
	req := engine.DialogRequest{
		Kind:          engine.DialogKind(e.Type),
		Message:       e.Message,
		DefaultPrompt: e.DefaultPrompt,
	}
	s.dialogMu.Lock()
	fn := s.onDialog
	s.dialogMu.Unlock()

	if fn == nil {
		// An unanswered dialog wedges the tab. Dismiss it.
		go func() {
			if err := s.ResolveDialog(s.ctx, false, ""); err != nil {
				s.logger.Warn("Failed to dismiss unmediated dialog.", zap.Error(err))
			}
		}()
		return
	}
	go fn(req)
}

func disableCacheAction() chromedp.Action {
	return chromedp.ActionFunc(func(c context.Context) error {
		return network.SetCacheDisabled(true).Do(c)
	})
}
