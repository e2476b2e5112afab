package engine

import "time"

// Options tune the engine's timing behavior. The zero value is usable;
// unset fields fall back to the defaults below.
type Options struct {
	// SettleDelay is the pause between measuring an element and
	// re-measuring it before pointer dispatch, absorbing layout shift
	// caused by scroll-into-view.
	SettleDelay time.Duration
	// PollInterval is the wait engine's check frequency.
	PollInterval time.Duration
	// DefaultTimeout bounds waits whose caller passed no explicit timeout.
	DefaultTimeout time.Duration
	// NavigationTimeout bounds Goto.
	NavigationTimeout time.Duration
	// SwitchSettle is the pause after rebinding to a different tab, giving
	// the new target's document a moment to become queryable.
	SwitchSettle time.Duration
	// SlowMo, when positive, paces action verbs to at most one per
	// interval. Useful for watching a script run in a headed browser.
	SlowMo time.Duration
}

func (o Options) withDefaults() Options {
	if o.SettleDelay <= 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 30 * time.Second
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 90 * time.Second
	}
	if o.SwitchSettle <= 0 {
		o.SwitchSettle = 500 * time.Millisecond
	}
	return o
}
