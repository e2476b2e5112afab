package recorder_test

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/enginetest"
	"github.com/xkilldash9x/waldo-cli/internal/recorder"
	"github.com/xkilldash9x/waldo-cli/internal/script"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recorderConfig() config.RecorderConfig {
	return config.RecorderConfig{
		ListenAddr:       "127.0.0.1:0",
		SnapshotInterval: time.Hour,
		EventsPerSecond:  1000,
	}
}

// fire pushes one event through the page binding, the way the injected
// capture script would.
func fire(t *testing.T, fake *enginetest.FakeSession, ev recorder.CapturedEvent) {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	require.True(t, fake.FireBinding("__waldoRecord", string(payload)))
}

func TestRecorderRecordsSteps(t *testing.T) {
	fake := &enginetest.FakeSession{
		EvalFunc: func(expr string) (string, error) { return "null", nil },
	}
	rec, err := recorder.New(fake, recorderConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Empty(t, rec.PreviewURL())
	require.NoError(t, rec.Start(context.Background()))
	t.Cleanup(func() { _ = rec.Close() })

	// The capture script reaches future documents through injection and
	// the already open one through evaluation.
	require.Len(t, fake.Injections(), 1)
	assert.Contains(t, fake.Injections()[0], "__waldoRecorderInstalled")
	assert.Contains(t, fake.Evaluations(), fake.Injections()[0])

	url := rec.PreviewURL()
	require.True(t, strings.HasPrefix(url, "http://"), "preview url %q", url)
	c := dialPreview(t, strings.TrimPrefix(url, "http://"))

	hello := c.read(t)
	assert.Equal(t, recorder.MessageHello, hello.Type)
	assert.Empty(t, hello.Lines)

	fire(t, fake, recorder.CapturedEvent{Seq: 0, Type: "navigate", URL: "https://shop.test/"})
	msg := c.read(t)
	assert.Equal(t, recorder.MessageStep, msg.Type)
	assert.Equal(t, 0, msg.Index)
	assert.Equal(t, "goto https://shop.test/", msg.Line)
	assert.False(t, msg.Replaced)

	fire(t, fake, recorder.CapturedEvent{Seq: 1, Type: "click", Selector: "#buy"})
	assert.Equal(t, "click #buy", c.read(t).Line)

	// Garbage from the page must not kill the recording.
	require.True(t, fake.FireBinding("__waldoRecord", "{not json"))
	fire(t, fake, recorder.CapturedEvent{Seq: 2, Type: "keydown", Key: "Enter"})
	assert.Equal(t, "press Enter", c.read(t).Line)

	require.NoError(t, rec.Close())
	assert.Equal(t, []string{"goto https://shop.test/", "click #buy", "press Enter"}, rec.Lines())

	suite, err := script.Parse("recorded", strings.NewReader(rec.Script()))
	require.NoError(t, err)
	assert.Len(t, suite.Steps, 3)
}

func TestRecorderServesSnapshots(t *testing.T) {
	var title atomic.Value
	title.Store("Shop")
	fake := &enginetest.FakeSession{
		EvalFunc: func(expr string) (string, error) {
			if !strings.Contains(expr, "outerHTML") {
				return "null", nil
			}
			data, err := json.Marshal(map[string]string{
				"title": title.Load().(string),
				"url":   "https://shop.test/",
				"html":  "<html><head><title>Shop</title></head><body><script>x()</script><h1>Waldo</h1></body></html>",
			})
			return string(data), err
		},
	}

	cfg := recorderConfig()
	cfg.SnapshotInterval = 25 * time.Millisecond
	rec, err := recorder.New(fake, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, rec.Start(context.Background()))
	t.Cleanup(func() { _ = rec.Close() })

	// A capture tick can race the handshake, so the hello may not be the
	// first frame here.
	c := dialPreview(t, strings.TrimPrefix(rec.PreviewURL(), "http://"))
	c.readType(t, recorder.MessageHello)

	msg := c.readType(t, recorder.MessageSnapshot)
	assert.Equal(t, "Shop", msg.Title)
	assert.Equal(t, "https://shop.test/", msg.URL)
	assert.Positive(t, msg.Size)

	// The frame loads the capture over plain http, already sanitized.
	resp, err := httpClient(t).Get(rec.PreviewURL() + "/snapshot")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	s := string(body)
	assert.Contains(t, s, "<h1>Waldo</h1>")
	assert.NotContains(t, s, "<script")
	assert.Contains(t, s, `<base href="https://shop.test/"`)

	// An unchanged page is not re-announced every tick, so the change
	// shows up within a frame or two.
	title.Store("Shop2")
	for i := 0; i < 5 && msg.Title != "Shop2"; i++ {
		msg = c.readType(t, recorder.MessageSnapshot)
	}
	assert.Equal(t, "Shop2", msg.Title)
}

func TestRecorderStartErrors(t *testing.T) {
	log := zaptest.NewLogger(t)

	t.Run("nil dependencies", func(t *testing.T) {
		_, err := recorder.New(nil, recorderConfig(), log)
		assert.ErrorContains(t, err, "nil dependencies")
		_, err = recorder.New(&enginetest.FakeSession{}, recorderConfig(), nil)
		assert.ErrorContains(t, err, "nil dependencies")
	})

	t.Run("binding rejected", func(t *testing.T) {
		fake := &enginetest.FakeSession{
			BindFunc: func(string) error { return errors.New("page gone") },
		}
		rec, err := recorder.New(fake, recorderConfig(), log)
		require.NoError(t, err)
		err = rec.Start(context.Background())
		assert.ErrorContains(t, err, "exposing capture binding")
	})

	t.Run("injection rejected", func(t *testing.T) {
		fake := &enginetest.FakeSession{
			InjectFunc: func(string) error { return errors.New("page gone") },
		}
		rec, err := recorder.New(fake, recorderConfig(), log)
		require.NoError(t, err)
		err = rec.Start(context.Background())
		assert.ErrorContains(t, err, "installing capture script")
	})

	t.Run("arming the open document is best effort", func(t *testing.T) {
		fake := &enginetest.FakeSession{
			EvalFunc: func(string) (string, error) { return "", errors.New("navigation in flight") },
		}
		rec, err := recorder.New(fake, recorderConfig(), log)
		require.NoError(t, err)
		require.NoError(t, rec.Start(context.Background()))
		assert.NoError(t, rec.Close())
	})

	t.Run("listen address taken", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { ln.Close() })

		fake := &enginetest.FakeSession{
			EvalFunc: func(string) (string, error) { return "null", nil },
		}
		cfg := recorderConfig()
		cfg.ListenAddr = ln.Addr().String()
		rec, err := recorder.New(fake, cfg, log)
		require.NoError(t, err)
		err = rec.Start(context.Background())
		assert.ErrorContains(t, err, "listening on")
	})

	t.Run("double start", func(t *testing.T) {
		fake := &enginetest.FakeSession{
			EvalFunc: func(string) (string, error) { return "null", nil },
		}
		rec, err := recorder.New(fake, recorderConfig(), log)
		require.NoError(t, err)
		require.NoError(t, rec.Start(context.Background()))
		t.Cleanup(func() { _ = rec.Close() })

		assert.ErrorContains(t, rec.Start(context.Background()), "already started")
	})

	t.Run("close before start", func(t *testing.T) {
		fake := &enginetest.FakeSession{}
		rec, err := recorder.New(fake, recorderConfig(), log)
		require.NoError(t, err)
		assert.NoError(t, rec.Close())
	})
}
