package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ExposeBinding registers a page-side function window[name](payload) that
// forwards its string payload to fn. fn runs on its own goroutine per
// call; ordering between calls is not guaranteed.
func (s *CDPSession) ExposeBinding(ctx context.Context, name string, fn func(payload string)) error {
	if name == "" {
		return fmt.Errorf("binding name must not be empty")
	}

	s.bindingMu.Lock()
	if _, exists := s.bindings[name]; exists {
		s.bindingMu.Unlock()
		return fmt.Errorf("binding %q already registered", name)
	}
	s.bindings[name] = fn
	s.bindingMu.Unlock()

	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return runtime.AddBinding(name).Do(c)
	}))
	if err != nil {
		s.bindingMu.Lock()
		delete(s.bindings, name)
		s.bindingMu.Unlock()
		return fmt.Errorf("failed to expose binding %q: %w", name, err)
	}
	return nil
}

// InjectOnNewDocument installs script so that it runs before any page
// script on every future navigation in this tab. It does not run in the
// document that is already open; use Evaluate for that.
func (s *CDPSession) InjectOnNewDocument(ctx context.Context, script string) error {
	return s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(c)
		return err
	}))
}
