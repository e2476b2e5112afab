package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Mouse event types and buttons as the wire protocol's input domain names
// them.
const (
	MousePressed  = "mousePressed"
	MouseReleased = "mouseReleased"
	MouseMoved    = "mouseMoved"

	ButtonNone  = "none"
	ButtonLeft  = "left"
	ButtonRight = "right"
)

// MouseEvent is one pointer event to dispatch. Coordinates are in
// main-frame viewport space.
type MouseEvent struct {
	Type       string
	X          float64
	Y          float64
	Button     string
	ClickCount int
}

// Key event types.
const (
	KeyDown = "keyDown"
	KeyUp   = "keyUp"
)

// KeyEvent is one keyboard event to dispatch. Text is set on key-down
// events that insert characters.
type KeyEvent struct {
	Type    string
	Key     string
	Code    string
	Text    string
	KeyCode int
}

// TargetInfo identifies one open page-type browsing context.
type TargetInfo struct {
	ID    string
	URL   string
	Title string
}

// ProtocolSession is the transport the engine drives. One session is bound
// to one browsing-context target. The engine issues one command at a time
// per session and makes no assumptions about how commands cross the wire;
// the production implementation speaks the DevTools protocol, tests supply
// a scripted fake.
type ProtocolSession interface {
	// Navigate loads the url and returns once the load event has fired.
	Navigate(ctx context.Context, url string) error
	// WaitForLoad blocks until the current document has finished loading.
	WaitForLoad(ctx context.Context) error
	// Evaluate runs expr in the page and unmarshals its JSON-safe result
	// into out. A nil out discards the result.
	Evaluate(ctx context.Context, expr string, out interface{}) error
	DispatchMouse(ctx context.Context, ev MouseEvent) error
	DispatchKey(ctx context.Context, ev KeyEvent) error
	// OnDialog registers the callback invoked whenever the page opens a
	// javascript dialog. At most one callback is active per session.
	OnDialog(fn func(DialogRequest))
	// ResolveDialog answers the currently open dialog.
	ResolveDialog(ctx context.Context, accept bool, promptText string) error
	// ListTargets enumerates open page-type targets.
	ListTargets(ctx context.Context) ([]TargetInfo, error)
	// AttachTarget opens an independent session bound to the given target.
	AttachTarget(ctx context.Context, id string) (ProtocolSession, error)
	// Close releases the session's connection. The underlying page keeps
	// running.
	Close() error
}

// session binds the engine to one protocol session. A Page holds exactly
// one current session; tab switches replace it wholesale.
type session struct {
	proto    ProtocolSession
	targetID string
	opts     Options
	log      *zap.Logger
	limiter  *rate.Limiter
}

func newSession(proto ProtocolSession, targetID string, opts Options, log *zap.Logger, limiter *rate.Limiter) *session {
	return &session{
		proto:    proto,
		targetID: targetID,
		opts:     opts,
		log:      log,
		limiter:  limiter,
	}
}

// evalOutcome runs a synthesized script and decodes its tagged outcome.
func (s *session) evalOutcome(ctx context.Context, expr string) (*queryOutcome, error) {
	var o queryOutcome
	if err := s.proto.Evaluate(ctx, expr, &o); err != nil {
		return nil, fmt.Errorf("evaluating page script: %w", err)
	}
	return &o, nil
}

// pace blocks until the slow-mo limiter grants the next action. A nil
// limiter means pacing is off.
func (s *session) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// sleepCtx pauses for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
