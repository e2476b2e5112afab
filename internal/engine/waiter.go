package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// condition is one wait predicate. It reports whether the wait is done and
// a human-readable description of the last observed state for timeout
// diagnostics. A returned error aborts the wait immediately.
type condition func(ctx context.Context) (done bool, state string, err error)

// waitFor polls cond until it succeeds or timeout elapses. The first check
// runs immediately; subsequent checks run on the configured poll interval.
// A zero timeout falls back to the session default. On expiry the error
// carries the elapsed bound and the last observed state.
func (s *session) waitFor(ctx context.Context, op string, timeout time.Duration, cond condition) error {
	if timeout <= 0 {
		timeout = s.opts.DefaultTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var last string
	for {
		done, state, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if state != "" {
			last = state
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &TimeoutError{Op: op, Timeout: timeout, LastState: last}
		case <-ticker.C:
		}
	}
}

// waitForSelector waits until the selector matches at least one element.
// Evaluation failures while a navigation is in flight are treated as "not
// yet", since the script context is legitimately unavailable mid-load; an
// inaccessible intermediate frame likewise keeps the poll alive.
func (s *session) waitForSelector(ctx context.Context, chain []Selector, sel Selector, timeout time.Duration) error {
	expr := buildCountExpr(chain, sel)
	op := fmt.Sprintf("waitForSelector(%q)", sel.Raw)
	return s.waitFor(ctx, op, timeout, func(ctx context.Context) (bool, string, error) {
		var o queryOutcome
		if err := s.proto.Evaluate(ctx, expr, &o); err != nil {
			if ctx.Err() != nil {
				return false, "", ctx.Err()
			}
			return false, fmt.Sprintf("evaluation failed: %v", err), nil
		}
		if o.Status == statusNotReady {
			return false, "frame not ready", nil
		}
		if o.Count > 0 {
			return true, "", nil
		}
		return false, "0 matches", nil
	})
}

// currentURL reads the page's location.
func (s *session) currentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.proto.Evaluate(ctx, "location.href", &u); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return u, nil
}

// waitForURL waits until the page URL matches the pattern.
func (s *session) waitForURL(ctx context.Context, p URLPattern, timeout time.Duration) error {
	op := fmt.Sprintf("waitForURL(%q)", p.String())
	return s.waitFor(ctx, op, timeout, func(ctx context.Context) (bool, string, error) {
		u, err := s.currentURL(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, "", ctx.Err()
			}
			return false, fmt.Sprintf("url unavailable: %v", err), nil
		}
		if p.Match(u) {
			return true, "", nil
		}
		return false, fmt.Sprintf("current url %q", u), nil
	})
}

// URLPattern matches page URLs one of three ways, picked by the caller's
// argument type: a plain string is a substring match, a string containing
// "**" is compiled as a glob, and a precompiled *regexp.Regexp is used as
// given.
type URLPattern struct {
	raw string
	g   glob.Glob
	re  *regexp.Regexp
}

// NewURLPattern builds a URLPattern from a string or *regexp.Regexp.
func NewURLPattern(pattern interface{}) (URLPattern, error) {
	switch p := pattern.(type) {
	case string:
		if strings.Contains(p, "**") {
			g, err := glob.Compile(p)
			if err != nil {
				return URLPattern{}, fmt.Errorf("compiling url glob %q: %w", p, err)
			}
			return URLPattern{raw: p, g: g}, nil
		}
		return URLPattern{raw: p}, nil
	case *regexp.Regexp:
		return URLPattern{raw: p.String(), re: p}, nil
	default:
		return URLPattern{}, fmt.Errorf("unsupported url pattern type %T (want string or *regexp.Regexp)", pattern)
	}
}

// Match reports whether u satisfies the pattern.
func (p URLPattern) Match(u string) bool {
	switch {
	case p.re != nil:
		return p.re.MatchString(u)
	case p.g != nil:
		return p.g.Match(u)
	default:
		return strings.Contains(u, p.raw)
	}
}

func (p URLPattern) String() string { return p.raw }
