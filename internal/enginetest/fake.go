// Package enginetest provides a scripted ProtocolSession for tests. The
// fake records every command the engine issues and routes script
// evaluation through a caller-supplied function, so tests can assert both
// the synthesized scripts and the dispatch sequences without a browser.
package enginetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

// DialogResolution is one recorded ResolveDialog call.
type DialogResolution struct {
	Accept     bool
	PromptText string
}

// FakeSession implements engine.ProtocolSession. The zero value is usable;
// Evaluate fails until EvalFunc is set.
type FakeSession struct {
	mu sync.Mutex

	// EvalFunc receives each evaluated expression and returns the JSON the
	// page would have produced.
	EvalFunc func(expr string) (string, error)
	// NavigateFunc, when set, decides the outcome of Navigate calls.
	NavigateFunc func(url string) error
	// TargetsFunc, when set, backs ListTargets.
	TargetsFunc func() ([]engine.TargetInfo, error)
	// AttachFunc, when set, backs AttachTarget.
	AttachFunc func(id string) (engine.ProtocolSession, error)
	// ScreenshotFunc, when set, backs the optional screenshot capability.
	ScreenshotFunc func() ([]byte, error)
	// BindFunc, when set, decides the outcome of ExposeBinding calls.
	BindFunc func(name string) error
	// InjectFunc, when set, decides the outcome of InjectOnNewDocument calls.
	InjectFunc func(script string) error

	navigations []string
	evaluations []string
	mouse       []engine.MouseEvent
	keys        []engine.KeyEvent
	resolutions []DialogResolution
	loadWaits   int
	closed      bool
	armCount    int

	dialogFn   func(engine.DialogRequest)
	bindings   map[string]func(payload string)
	injections []string
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	f.navigations = append(f.navigations, url)
	fn := f.NavigateFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(url)
	}
	return nil
}

func (f *FakeSession) WaitForLoad(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadWaits++
	return nil
}

func (f *FakeSession) Evaluate(ctx context.Context, expr string, out interface{}) error {
	f.mu.Lock()
	f.evaluations = append(f.evaluations, expr)
	fn := f.EvalFunc
	f.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("enginetest: no EvalFunc installed for expression %q", expr)
	}
	payload, err := fn(expr)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("enginetest: unmarshaling scripted payload %q: %w", payload, err)
	}
	return nil
}

func (f *FakeSession) DispatchMouse(ctx context.Context, ev engine.MouseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mouse = append(f.mouse, ev)
	return nil
}

func (f *FakeSession) DispatchKey(ctx context.Context, ev engine.KeyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, ev)
	return nil
}

func (f *FakeSession) OnDialog(fn func(engine.DialogRequest)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialogFn = fn
	f.armCount++
}

func (f *FakeSession) ResolveDialog(ctx context.Context, accept bool, promptText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions = append(f.resolutions, DialogResolution{Accept: accept, PromptText: promptText})
	return nil
}

func (f *FakeSession) ListTargets(ctx context.Context) ([]engine.TargetInfo, error) {
	f.mu.Lock()
	fn := f.TargetsFunc
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil, nil
}

func (f *FakeSession) AttachTarget(ctx context.Context, id string) (engine.ProtocolSession, error) {
	f.mu.Lock()
	fn := f.AttachFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(id)
	}
	return &FakeSession{}, nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Screenshot implements the optional capture capability collaborators probe
// for.
func (f *FakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	fn := f.ScreenshotFunc
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return []byte("fake-image"), nil
}

// ExposeBinding implements the instrumentation capability the recorder
// probes for. The bound function is kept so tests can invoke it through
// FireBinding.
func (f *FakeSession) ExposeBinding(ctx context.Context, name string, fn func(payload string)) error {
	f.mu.Lock()
	if f.bindings == nil {
		f.bindings = make(map[string]func(string))
	}
	if _, exists := f.bindings[name]; exists {
		f.mu.Unlock()
		return fmt.Errorf("enginetest: binding %q already registered", name)
	}
	f.bindings[name] = fn
	bindFn := f.BindFunc
	f.mu.Unlock()

	if bindFn != nil {
		if err := bindFn(name); err != nil {
			f.mu.Lock()
			delete(f.bindings, name)
			f.mu.Unlock()
			return err
		}
	}
	return nil
}

// InjectOnNewDocument records script for inspection via Injections.
func (f *FakeSession) InjectOnNewDocument(ctx context.Context, script string) error {
	f.mu.Lock()
	f.injections = append(f.injections, script)
	fn := f.InjectFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(script)
	}
	return nil
}

// FireBinding simulates the page calling a bound function. Unlike the real
// session, which runs the callback on its own goroutine, the fake invokes
// it synchronously. It reports whether the binding exists.
func (f *FakeSession) FireBinding(name, payload string) bool {
	f.mu.Lock()
	fn := f.bindings[name]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(payload)
	return true
}

// FireDialog simulates the page opening a dialog. It invokes the armed
// callback synchronously and reports whether one was installed.
func (f *FakeSession) FireDialog(req engine.DialogRequest) bool {
	f.mu.Lock()
	fn := f.dialogFn
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(req)
	return true
}

// Navigations returns the urls passed to Navigate, in order.
func (f *FakeSession) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// Evaluations returns every evaluated expression, in order.
func (f *FakeSession) Evaluations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evaluations...)
}

// MouseEvents returns the dispatched pointer events, in order.
func (f *FakeSession) MouseEvents() []engine.MouseEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.MouseEvent(nil), f.mouse...)
}

// KeyEvents returns the dispatched key events, in order.
func (f *FakeSession) KeyEvents() []engine.KeyEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.KeyEvent(nil), f.keys...)
}

// Resolutions returns the recorded dialog resolutions, in order.
func (f *FakeSession) Resolutions() []DialogResolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DialogResolution(nil), f.resolutions...)
}

// Injections returns the scripts installed for future documents, in order.
func (f *FakeSession) Injections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.injections...)
}

// LoadWaits reports how many times WaitForLoad ran.
func (f *FakeSession) LoadWaits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadWaits
}

// Closed reports whether Close was called.
func (f *FakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ArmCount reports how many times OnDialog was called. The dialog mediator
// should subscribe exactly once per session no matter how often the handler
// changes.
func (f *FakeSession) ArmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armCount
}
