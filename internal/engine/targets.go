package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GetTabs lists the open page-type targets in the browser this page
// belongs to.
func (p *Page) GetTabs(ctx context.Context) ([]TargetInfo, error) {
	targets, err := p.current().proto.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	return targets, nil
}

// SwitchToTab rebinds this page to another open tab. ref is either an int
// index into the GetTabs order or a string target id. The previous
// session's connection is closed, a fresh session is attached to the
// requested target and re-armed for dialogs, and a short settle delay runs
// before returning since the new document may not be queryable instantly.
// Switching to the already-current tab is a no-op.
func (p *Page) SwitchToTab(ctx context.Context, ref interface{}) error {
	s := p.current()
	targets, err := s.proto.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("listing targets: %w", err)
	}

	var picked *TargetInfo
	switch r := ref.(type) {
	case int:
		if r < 0 || r >= len(targets) {
			return fmt.Errorf("tab index %d out of range (%d tabs open)", r, len(targets))
		}
		picked = &targets[r]
	case string:
		for i := range targets {
			if targets[i].ID == r {
				picked = &targets[i]
				break
			}
		}
		if picked == nil {
			return fmt.Errorf("no open tab with target id %q", r)
		}
	default:
		return fmt.Errorf("unsupported tab reference type %T (want int or string)", ref)
	}

	if picked.ID == s.targetID {
		return nil
	}

	p.log.Info("switching tab",
		zap.String("target_id", picked.ID),
		zap.String("url", picked.URL))

	proto, err := s.proto.AttachTarget(ctx, picked.ID)
	if err != nil {
		return fmt.Errorf("attaching to target %s: %w", picked.ID, err)
	}
	fresh := newSession(proto, picked.ID, p.opts, p.log, p.limiter)
	armDialogs(p.ctx, fresh, p.getHandler)

	if err := s.proto.Close(); err != nil {
		p.log.Warn("closing previous tab session", zap.Error(err))
	}

	p.mu.Lock()
	p.sess = fresh
	p.mu.Unlock()

	return sleepCtx(ctx, p.opts.SwitchSettle)
}

// WaitForNewTab snapshots the open targets, then polls until a target id
// appears that was absent from the snapshot, and returns an independent
// Page bound to it. Parent and child can be driven concurrently; neither
// shares session state with the other. When several new targets appear
// within one poll the first in registry order wins.
func (p *Page) WaitForNewTab(ctx context.Context, timeout time.Duration) (*Page, error) {
	s := p.current()
	before, err := s.proto.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshotting targets: %w", err)
	}
	seen := make(map[string]bool, len(before))
	for _, t := range before {
		seen[t.ID] = true
	}

	var found TargetInfo
	err = s.waitFor(ctx, "waitForNewTab", timeout, func(ctx context.Context) (bool, string, error) {
		now, err := s.proto.ListTargets(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, "", ctx.Err()
			}
			return false, fmt.Sprintf("target listing failed: %v", err), nil
		}
		for i := range now {
			if !seen[now[i].ID] {
				found = now[i]
				return true, "", nil
			}
		}
		return false, fmt.Sprintf("%d targets open, none new", len(now)), nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("new tab detected",
		zap.String("target_id", found.ID),
		zap.String("url", found.URL))

	proto, err := s.proto.AttachTarget(ctx, found.ID)
	if err != nil {
		return nil, fmt.Errorf("attaching to new target %s: %w", found.ID, err)
	}

	child := &Page{
		ctx:  p.ctx,
		log:  p.log,
		opts: p.opts,
	}
	if p.opts.SlowMo > 0 {
		child.limiter = rate.NewLimiter(rate.Every(p.opts.SlowMo), 1)
	}
	child.sess = newSession(proto, found.ID, p.opts, p.log, child.limiter)
	armDialogs(p.ctx, child.sess, child.getHandler)
	return child, nil
}
