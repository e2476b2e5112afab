// Package engine turns high-level automation verbs into sequenced protocol
// operations against a live page. It owns selector resolution, page-side
// script synthesis, input dispatch ordering, waits, dialog mediation and
// tab management; the transport itself is injected as a ProtocolSession.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Page is the public handle to one driven browsing context. All methods
// operate against the current session; SwitchToTab is the only operation
// that replaces it. Methods on one Page must not be called concurrently
// with each other, matching the one-command-at-a-time session discipline;
// separate Pages (from WaitForNewTab) are fully independent.
type Page struct {
	ctx     context.Context
	log     *zap.Logger
	opts    Options
	limiter *rate.Limiter

	mu   sync.Mutex
	sess *session

	handlerMu sync.Mutex
	handler   DialogHandler

	closeOnce sync.Once
}

// NewPage wraps an attached protocol session. ctx scopes background work
// (dialog resolution) and should live as long as the page. The dialog
// mediator is armed immediately with the default auto-accept handler.
func NewPage(ctx context.Context, proto ProtocolSession, opts Options, log *zap.Logger) *Page {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Page{
		ctx:  ctx,
		log:  log.Named("engine"),
		opts: opts.withDefaults(),
	}
	if p.opts.SlowMo > 0 {
		p.limiter = rate.NewLimiter(rate.Every(p.opts.SlowMo), 1)
	}
	p.sess = newSession(proto, "", p.opts, p.log, p.limiter)
	armDialogs(ctx, p.sess, p.getHandler)
	return p
}

// current returns the session all non-tab operations run against.
func (p *Page) current() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess
}

func (p *Page) getHandler() DialogHandler {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	return p.handler
}

// SetDialogHandler installs the decision function for javascript dialogs.
// Passing nil restores the default auto-accept behavior. The change takes
// effect for the next dialog; no re-subscription happens.
func (p *Page) SetDialogHandler(h DialogHandler) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.handler = h
}

// Goto navigates to url and returns once the load event fires, bounded by
// the navigation timeout.
func (p *Page) Goto(ctx context.Context, url string) error {
	opCtx, cancel := context.WithTimeout(ctx, p.opts.NavigationTimeout)
	defer cancel()

	p.log.Info("navigating", zap.String("url", url))
	if err := p.current().proto.Navigate(opCtx, url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// WaitForLoad blocks until the current document has finished loading.
func (p *Page) WaitForLoad(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, p.opts.NavigationTimeout)
	defer cancel()
	if err := p.current().proto.WaitForLoad(opCtx); err != nil {
		return fmt.Errorf("waiting for load: %w", err)
	}
	return nil
}

// Locator starts a chainable element handle for the given selector in
// strict mode.
func (p *Page) Locator(selector string) *Locator {
	return &Locator{page: p, sel: ResolveSelector(selector)}
}

// GetByAttribute is sugar for an attribute-equality selector.
func (p *Page) GetByAttribute(attr, value string) *Locator {
	escaped := strings.ReplaceAll(value, `"`, `\"`)
	return p.Locator(fmt.Sprintf(`[%s="%s"]`, attr, escaped))
}

// Frame enters the iframe matched by selector. The returned handle carries
// the same verb surface; nested Frame calls descend further.
func (p *Page) Frame(selector string) *Frame {
	return &Frame{page: p, chain: []Selector{ResolveSelector(selector)}}
}

// Click clicks the single element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.Locator(selector).Click(ctx)
}

// DoubleClick double-clicks the single element matching selector.
func (p *Page) DoubleClick(ctx context.Context, selector string) error {
	return p.Locator(selector).DoubleClick(ctx)
}

// RightClick context-clicks the single element matching selector.
func (p *Page) RightClick(ctx context.Context, selector string) error {
	return p.Locator(selector).RightClick(ctx)
}

// Hover moves the pointer over the single element matching selector.
func (p *Page) Hover(ctx context.Context, selector string) error {
	return p.Locator(selector).Hover(ctx)
}

// Type focuses the element with a click, then sends one key event pair per
// character. Existing content is kept; use Fill to replace it.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	return p.Locator(selector).Type(ctx, text)
}

// Fill replaces the element's value wholesale and fires input/change.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.Locator(selector).Fill(ctx, value)
}

// Select replaces the selection of a <select> with exactly the given
// options, firing a single change event.
func (p *Page) Select(ctx context.Context, selector string, options ...SelectOption) error {
	return p.Locator(selector).SelectOptions(ctx, options...)
}

// Check ensures a checkbox or radio is checked. Already-checked controls
// are left untouched.
func (p *Page) Check(ctx context.Context, selector string) error {
	return p.Locator(selector).Check(ctx)
}

// Uncheck ensures a checkbox is unchecked.
func (p *Page) Uncheck(ctx context.Context, selector string) error {
	return p.Locator(selector).Uncheck(ctx)
}

// DragAndDrop drags the source element onto the target element.
func (p *Page) DragAndDrop(ctx context.Context, source, target string) error {
	return p.Locator(source).DragTo(ctx, p.Locator(target))
}

// PressKey sends one key press to whatever currently holds focus. The key
// is a name like "Enter" or "Escape", or a single printable character.
func (p *Page) PressKey(ctx context.Context, key string) error {
	return p.current().pressKey(ctx, key)
}

// WaitForSelector waits until selector matches at least one element. A zero
// timeout uses the default.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return p.current().waitForSelector(ctx, nil, ResolveSelector(selector), timeout)
}

// WaitForURL waits until the page URL matches pattern: a substring, a glob
// containing "**", or a *regexp.Regexp.
func (p *Page) WaitForURL(ctx context.Context, pattern interface{}, timeout time.Duration) error {
	up, err := NewURLPattern(pattern)
	if err != nil {
		return err
	}
	return p.current().waitForURL(ctx, up, timeout)
}

// URL reports the page's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	return p.current().currentURL(ctx)
}

// Content returns the full serialized HTML of the current document.
func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.current().proto.Evaluate(ctx, "document.documentElement.outerHTML", &html); err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	return html, nil
}

// Evaluate runs an arbitrary script in the page and returns its JSON-safe
// result.
func (p *Page) Evaluate(ctx context.Context, script string) (interface{}, error) {
	var v interface{}
	if err := p.current().proto.Evaluate(ctx, script, &v); err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return v, nil
}

// Protocol exposes the current protocol session, for collaborators that
// need transport capabilities beyond the engine surface (screenshots).
func (p *Page) Protocol() ProtocolSession {
	return p.current().proto
}

// Close releases the current session. Safe to call more than once.
func (p *Page) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.log.Info("closing automation session")
		err = p.current().proto.Close()
	})
	return err
}
