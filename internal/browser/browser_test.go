package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newBareSession builds a session with no protocol connection behind it.
// Protocol commands fail, but the in-memory paths (event dispatch, state
// checks, close semantics) behave exactly as they do on a live session.
func newBareSession(t *testing.T) *CDPSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &CDPSession{
		id:       "test-session",
		logger:   zaptest.NewLogger(t),
		ctx:      ctx,
		cancel:   cancel,
		bindings: make(map[string]func(string)),
	}
}

func TestSplitArg(t *testing.T) {
	tests := []struct {
		arg       string
		wantName  string
		wantValue interface{}
	}{
		{"--lang=en-US", "lang", "en-US"},
		{"--disable-sync", "disable-sync", true},
		{"--force-fieldtrials=Group=A", "force-fieldtrials", "Group=A"},
		{"no-dashes=1", "no-dashes", "1"},
		{"--window-size=800,600", "window-size", "800,600"},
	}
	for _, tc := range tests {
		t.Run(tc.arg, func(t *testing.T) {
			name, value := splitArg(tc.arg)
			assert.Equal(t, tc.wantName, name)
			assert.Equal(t, tc.wantValue, value)
		})
	}
}

// The allocator options are opaque closures, so the tests assert on how
// many options each config knob contributes rather than on flag contents.
func TestDefaultAllocatorOptions(t *testing.T) {
	base := config.BrowserConfig{Headless: true}
	baseLen := len(DefaultAllocatorOptions(base))

	t.Run("DefaultConfig", func(t *testing.T) {
		assert.Greater(t, baseLen, len(chromedp.DefaultExecAllocatorOptions),
			"should build on top of the library defaults")
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		cfg := base
		cfg.IgnoreTLSErrors = true
		assert.Len(t, DefaultAllocatorOptions(cfg), baseLen+2)
	})

	t.Run("CacheDisabled", func(t *testing.T) {
		cfg := base
		cfg.DisableCache = true
		assert.Len(t, DefaultAllocatorOptions(cfg), baseLen+3)
	})

	t.Run("IdentityOptions", func(t *testing.T) {
		cfg := base
		cfg.UserAgent = "waldo-test/1.0"
		cfg.ExecPath = "/usr/bin/chromium"
		cfg.Proxy = "http://127.0.0.1:8080"
		assert.Len(t, DefaultAllocatorOptions(cfg), baseLen+3)
	})

	t.Run("WithViewport", func(t *testing.T) {
		cfg := base
		cfg.Viewport = config.ViewportConfig{Width: 1920, Height: 1080}
		assert.Len(t, DefaultAllocatorOptions(cfg), baseLen+1)

		cfg.Viewport = config.ViewportConfig{Width: 1920}
		assert.Len(t, DefaultAllocatorOptions(cfg), baseLen,
			"a partial viewport is ignored")
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		cfg := base
		cfg.Args = []string{"--custom-arg1", "--custom-arg2=value"}
		assert.Len(t, DefaultAllocatorOptions(cfg), baseLen+2)
	})
}

func TestPageTargets(t *testing.T) {
	own := cdp.BrowserContextID("ctx-own")
	other := cdp.BrowserContextID("ctx-other")

	infos := []*target.Info{
		{TargetID: "t1", Type: "page", URL: "https://example.com/", Title: "Example", BrowserContextID: own},
		{TargetID: "t2", Type: "iframe", URL: "https://example.com/frame", BrowserContextID: own},
		{TargetID: "t3", Type: "service_worker", URL: "https://example.com/sw.js", BrowserContextID: own},
		{TargetID: "t4", Type: "page", URL: "https://elsewhere.test/", Title: "Elsewhere", BrowserContextID: other},
		{TargetID: "t5", Type: "page", URL: "about:blank", Title: "", BrowserContextID: own},
	}

	got := pageTargets(infos, own)
	require.Len(t, got, 2, "only page targets of the matching browser context survive")

	assert.Equal(t, engine.TargetInfo{ID: "t1", URL: "https://example.com/", Title: "Example"}, got[0])
	assert.Equal(t, engine.TargetInfo{ID: "t5", URL: "about:blank"}, got[1])

	assert.NotNil(t, pageTargets(nil, own), "no matches still yields an empty slice")
	assert.Empty(t, pageTargets(infos, "ctx-unknown"))
}

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "conn"

	t.Run("InheritsSessionValues", func(t *testing.T) {
		session := context.WithValue(context.Background(), key, "browser")
		combined, cancel := combineContext(session, context.Background())
		defer cancel()

		assert.Equal(t, "browser", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CanceledBySession", func(t *testing.T) {
		session, cancelSession := context.WithCancel(context.Background())
		combined, cancel := combineContext(session, context.Background())
		defer cancel()

		cancelSession()
		assert.Eventually(t, func() bool { return combined.Err() != nil },
			time.Second, 10*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CanceledByOperation", func(t *testing.T) {
		op, cancelOp := context.WithCancel(context.Background())
		combined, cancel := combineContext(context.Background(), op)
		defer cancel()

		cancelOp()
		assert.Eventually(t, func() bool { return combined.Err() != nil },
			time.Second, 10*time.Millisecond)
		// The operation side propagates through the relay goroutine, so
		// the combined error is Canceled even on an op deadline.
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("OperationDeadline", func(t *testing.T) {
		op, cancelOp := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelOp()
		combined, cancel := combineContext(context.Background(), op)
		defer cancel()

		<-op.Done()
		assert.Eventually(t, func() bool { return combined.Err() != nil },
			time.Second, 10*time.Millisecond)
	})

	t.Run("ExplicitCancel", func(t *testing.T) {
		combined, cancel := combineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	const key ctxKey = "conn"

	t.Run("InheritsValues", func(t *testing.T) {
		parent := context.WithValue(context.Background(), key, "browser")
		assert.Equal(t, "browser", detach(parent).Value(key))
	})

	t.Run("IgnoresParentCancellation", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		detached := detach(parent)

		cancelParent()
		assert.ErrorIs(t, parent.Err(), context.Canceled)
		assert.NoError(t, detached.Err())
		assert.Nil(t, detached.Done())

		_, ok := detached.Deadline()
		assert.False(t, ok)
	})

	t.Run("DerivedTimeoutStillApplies", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		detached := detach(parent)

		derived, cancelDerived := context.WithTimeout(detached, 20*time.Millisecond)
		defer cancelDerived()

		cancelParent()
		<-derived.Done()
		assert.ErrorIs(t, derived.Err(), context.DeadlineExceeded)
		assert.NoError(t, detached.Err(), "the detached context itself stays live")
	})
}

func TestSessionClosedRejectsOperations(t *testing.T) {
	s := newBareSession(t)
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Navigate(ctx, "https://example.com/"), ErrSessionClosed)
	assert.ErrorIs(t, s.WaitForLoad(ctx), ErrSessionClosed)
	assert.ErrorIs(t, s.Evaluate(ctx, "1+1", nil), ErrSessionClosed)
	assert.ErrorIs(t, s.DispatchMouse(ctx, engine.MouseEvent{Type: engine.MousePressed, Button: engine.ButtonLeft, ClickCount: 1}), ErrSessionClosed)
	assert.ErrorIs(t, s.DispatchKey(ctx, engine.KeyEvent{Type: engine.KeyDown, Key: "a"}), ErrSessionClosed)
	assert.ErrorIs(t, s.ResolveDialog(ctx, true, ""), ErrSessionClosed)

	_, err := s.ListTargets(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.AttachTarget(ctx, "t1")
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Screenshot(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := newBareSession(t)

	released := 0
	s.onClose = func() { released++ }

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, released, "onClose must fire exactly once")
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled, "closing detaches the protocol context")
}

func TestDialogDispatch(t *testing.T) {
	t.Run("HandlerReceivesRequest", func(t *testing.T) {
		s := newBareSession(t)

		got := make(chan engine.DialogRequest, 1)
		s.OnDialog(func(req engine.DialogRequest) { got <- req })

		s.eventListener(&page.EventJavascriptDialogOpening{
			Type:          page.DialogTypePrompt,
			Message:       "Name?",
			DefaultPrompt: "anon",
		})

		select {
		case req := <-got:
			assert.Equal(t, engine.DialogPrompt, req.Kind)
			assert.Equal(t, "Name?", req.Message)
			assert.Equal(t, "anon", req.DefaultPrompt)
		case <-time.After(time.Second):
			t.Fatal("dialog handler was never invoked")
		}
	})

	t.Run("ReplacingHandler", func(t *testing.T) {
		s := newBareSession(t)

		first := make(chan engine.DialogRequest, 1)
		second := make(chan engine.DialogRequest, 1)
		s.OnDialog(func(req engine.DialogRequest) { first <- req })
		s.OnDialog(func(req engine.DialogRequest) { second <- req })

		s.eventListener(&page.EventJavascriptDialogOpening{Type: page.DialogTypeConfirm, Message: "Sure?"})

		select {
		case req := <-second:
			assert.Equal(t, engine.DialogConfirm, req.Kind)
		case <-time.After(time.Second):
			t.Fatal("replacement handler was never invoked")
		}
		assert.Empty(t, first, "the replaced handler must not fire")
	})
}

func TestBindingDispatch(t *testing.T) {
	s := newBareSession(t)

	got := make(chan string, 1)
	s.bindings["waldoEmit"] = func(payload string) { got <- payload }

	// An event for a name nobody registered is dropped on the floor.
	s.eventListener(&runtime.EventBindingCalled{Name: "unrelated", Payload: "ignored"})
	s.eventListener(&runtime.EventBindingCalled{Name: "waldoEmit", Payload: `{"type":"click"}`})

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"type":"click"}`, payload)
	case <-time.After(time.Second):
		t.Fatal("binding callback was never invoked")
	}
	assert.Empty(t, got, "the unregistered name must not produce a call")
}

func TestExposeBinding(t *testing.T) {
	t.Run("EmptyName", func(t *testing.T) {
		s := newBareSession(t)
		err := s.ExposeBinding(context.Background(), "", func(string) {})
		assert.ErrorContains(t, err, "must not be empty")
	})

	t.Run("DuplicateName", func(t *testing.T) {
		s := newBareSession(t)
		s.bindings["hook"] = func(string) {}

		err := s.ExposeBinding(context.Background(), "hook", func(string) {})
		assert.ErrorContains(t, err, "already registered")
	})

	t.Run("RollbackOnProtocolFailure", func(t *testing.T) {
		// The bare session has no protocol connection, so AddBinding
		// fails and the registration must be undone.
		s := newBareSession(t)

		err := s.ExposeBinding(context.Background(), "fresh", func(string) {})
		require.ErrorContains(t, err, `failed to expose binding "fresh"`)

		s.bindingMu.Lock()
		_, exists := s.bindings["fresh"]
		s.bindingMu.Unlock()
		assert.False(t, exists, "a failed registration must not linger")
	})
}
