package runner

import (
	"context"

	"github.com/xkilldash9x/waldo-cli/internal/browser"
	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

// BrowserPages adapts the shared browser to the PageFactory seam.
type BrowserPages struct {
	b *browser.Browser
}

// NewBrowserPages wraps a launched browser.
func NewBrowserPages(b *browser.Browser) *BrowserPages {
	return &BrowserPages{b: b}
}

func (p *BrowserPages) NewPage(ctx context.Context) (engine.ProtocolSession, error) {
	sess, err := p.b.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// DisposePage tears the tab's whole browser context down, not just the
// protocol connection.
func (p *BrowserPages) DisposePage(ctx context.Context, sess engine.ProtocolSession) error {
	cdp, ok := sess.(*browser.CDPSession)
	if !ok {
		return sess.Close()
	}
	return p.b.DisposePage(ctx, cdp)
}
