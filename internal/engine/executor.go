package engine

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// geometry is the measured position of one element, in main-frame viewport
// coordinates.
type geometry struct {
	x, y          float64
	width, height float64
	visible       bool
}

func (s *session) measure(ctx context.Context, chain []Selector, sel Selector, card Cardinality) (*geometry, error) {
	o, err := s.evalOutcome(ctx, buildMeasureExpr(chain, sel, card))
	if err != nil {
		return nil, err
	}
	if err := o.toError(sel.Raw); err != nil {
		return nil, err
	}
	return &geometry{x: o.X, y: o.Y, width: o.Width, height: o.Height, visible: o.Visible}, nil
}

// point resolves the dispatch coordinates for an element. The element is
// measured, given a settle delay to absorb layout shift from
// scroll-into-view, then measured again by the same selector. The fresher
// measurement wins when it succeeds; otherwise the first one stands. The
// first measurement failing fails the whole action before any dispatch.
func (s *session) point(ctx context.Context, chain []Selector, sel Selector, card Cardinality) (float64, float64, error) {
	g, err := s.measure(ctx, chain, sel, card)
	if err != nil {
		return 0, 0, err
	}
	if err := sleepCtx(ctx, s.opts.SettleDelay); err != nil {
		return 0, 0, err
	}
	if fresh, err := s.measure(ctx, chain, sel, card); err == nil {
		g = fresh
	}
	return g.x, g.y, nil
}

// clickAt dispatches one press/release pair at the given point.
func (s *session) clickAt(ctx context.Context, x, y float64, button string, clicks int) error {
	press := MouseEvent{Type: MousePressed, X: x, Y: y, Button: button, ClickCount: clicks}
	if err := s.proto.DispatchMouse(ctx, press); err != nil {
		return fmt.Errorf("dispatching mouse press: %w", err)
	}
	release := press
	release.Type = MouseReleased
	if err := s.proto.DispatchMouse(ctx, release); err != nil {
		return fmt.Errorf("dispatching mouse release: %w", err)
	}
	return nil
}

func (s *session) click(ctx context.Context, chain []Selector, sel Selector, card Cardinality, button string, clicks int) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	s.log.Debug("clicking element",
		zap.String("selector", sel.Raw),
		zap.String("cardinality", card.String()),
		zap.String("button", button),
		zap.Int("clicks", clicks))

	x, y, err := s.point(ctx, chain, sel, card)
	if err != nil {
		return err
	}
	return s.clickAt(ctx, x, y, button, clicks)
}

func (s *session) hover(ctx context.Context, chain []Selector, sel Selector, card Cardinality) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	s.log.Debug("hovering element", zap.String("selector", sel.Raw))

	x, y, err := s.point(ctx, chain, sel, card)
	if err != nil {
		return err
	}
	move := MouseEvent{Type: MouseMoved, X: x, Y: y, Button: ButtonNone}
	if err := s.proto.DispatchMouse(ctx, move); err != nil {
		return fmt.Errorf("dispatching mouse move: %w", err)
	}
	return nil
}

// typeText focuses the element with a real click, then dispatches one
// key-down/key-up pair per character in order.
func (s *session) typeText(ctx context.Context, chain []Selector, sel Selector, card Cardinality, text string) error {
	if err := s.click(ctx, chain, sel, card, ButtonLeft, 1); err != nil {
		return err
	}
	s.log.Debug("typing text", zap.String("selector", sel.Raw), zap.Int("chars", utf8.RuneCountInString(text)))
	for _, r := range text {
		for _, ev := range runeEvents(r) {
			if err := s.proto.DispatchKey(ctx, ev); err != nil {
				return fmt.Errorf("dispatching key %q: %w", ev.Key, err)
			}
		}
	}
	return nil
}

func (s *session) pressKey(ctx context.Context, key string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	evs, err := keyEvents(key)
	if err != nil {
		return err
	}
	s.log.Debug("pressing key", zap.String("key", key))
	for _, ev := range evs {
		if err := s.proto.DispatchKey(ctx, ev); err != nil {
			return fmt.Errorf("dispatching key %q: %w", key, err)
		}
	}
	return nil
}

// dragAndDrop presses on the source, moves to the target and releases.
// Both endpoints must resolve before a single event is dispatched.
func (s *session) dragAndDrop(ctx context.Context, srcChain []Selector, src Selector, srcCard Cardinality, dstChain []Selector, dst Selector, dstCard Cardinality) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	s.log.Debug("dragging element", zap.String("source", src.Raw), zap.String("target", dst.Raw))

	sx, sy, err := s.point(ctx, srcChain, src, srcCard)
	if err != nil {
		return err
	}
	dx, dy, err := s.point(ctx, dstChain, dst, dstCard)
	if err != nil {
		return err
	}

	steps := []MouseEvent{
		{Type: MousePressed, X: sx, Y: sy, Button: ButtonLeft, ClickCount: 1},
		{Type: MouseMoved, X: (sx + dx) / 2, Y: (sy + dy) / 2, Button: ButtonLeft},
		{Type: MouseMoved, X: dx, Y: dy, Button: ButtonLeft},
		{Type: MouseReleased, X: dx, Y: dy, Button: ButtonLeft, ClickCount: 1},
	}
	for _, ev := range steps {
		if err := s.proto.DispatchMouse(ctx, ev); err != nil {
			return fmt.Errorf("dispatching drag event %s: %w", ev.Type, err)
		}
	}
	return nil
}

// setChecked toggles a checkbox or radio to the requested state. The probe
// inspects current state first: already correct means no pointer action at
// all. A state change happens through a real click so page listeners see a
// genuine interaction rather than a property write.
func (s *session) setChecked(ctx context.Context, chain []Selector, sel Selector, card Cardinality, want bool) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	probe := func() (*queryOutcome, error) {
		o, err := s.evalOutcome(ctx, buildCheckProbeExpr(chain, sel, card, want))
		if err != nil {
			return nil, err
		}
		if err := o.toError(sel.Raw); err != nil {
			return nil, err
		}
		return o, nil
	}

	o, err := probe()
	if err != nil {
		return err
	}
	if o.Match {
		s.log.Debug("checkbox already in requested state", zap.String("selector", sel.Raw), zap.Bool("checked", want))
		return nil
	}
	if err := sleepCtx(ctx, s.opts.SettleDelay); err != nil {
		return err
	}
	if fresh, err := probe(); err == nil {
		if fresh.Match {
			return nil
		}
		o = fresh
	}
	return s.clickAt(ctx, o.X, o.Y, ButtonLeft, 1)
}

// selectOptions replaces the selection of a <select> with exactly the given
// options.
func (s *session) selectOptions(ctx context.Context, chain []Selector, sel Selector, card Cardinality, options []SelectOption) error {
	if len(options) == 0 {
		return fmt.Errorf("select on %q requires at least one option", sel.Raw)
	}
	if err := s.pace(ctx); err != nil {
		return err
	}
	s.log.Debug("selecting options", zap.String("selector", sel.Raw), zap.Int("options", len(options)))

	o, err := s.evalOutcome(ctx, buildSelectExpr(chain, sel, card, options))
	if err != nil {
		return err
	}
	return o.toError(sel.Raw)
}

func (s *session) fill(ctx context.Context, chain []Selector, sel Selector, card Cardinality, value string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	s.log.Debug("filling element", zap.String("selector", sel.Raw))

	o, err := s.evalOutcome(ctx, buildSetValueExpr(chain, sel, card, value))
	if err != nil {
		return err
	}
	return o.toError(sel.Raw)
}

func (s *session) textContent(ctx context.Context, chain []Selector, sel Selector, card Cardinality) (string, error) {
	o, err := s.evalOutcome(ctx, buildTextExpr(chain, sel, card))
	if err != nil {
		return "", err
	}
	if err := o.toError(sel.Raw); err != nil {
		return "", err
	}
	return o.Text, nil
}

func (s *session) attribute(ctx context.Context, chain []Selector, sel Selector, card Cardinality, name string) (string, error) {
	o, err := s.evalOutcome(ctx, buildAttributeExpr(chain, sel, card, name))
	if err != nil {
		return "", err
	}
	if err := o.toError(sel.Raw); err != nil {
		return "", err
	}
	return o.Value, nil
}

// state reads one boolean predicate. A missing element is an error, never a
// silent false.
func (s *session) state(ctx context.Context, chain []Selector, sel Selector, card Cardinality, st ElementState) (bool, error) {
	o, err := s.evalOutcome(ctx, buildStateExpr(chain, sel, card, st))
	if err != nil {
		return false, err
	}
	if err := o.toError(sel.Raw); err != nil {
		return false, err
	}
	return o.Flag, nil
}
