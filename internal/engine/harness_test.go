package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waldo-cli/internal/engine"
	"github.com/xkilldash9x/waldo-cli/internal/enginetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestPage wires a page to a scripted session with timings shrunk so
// settle delays and poll intervals cost the suite nothing.
func newTestPage(t *testing.T, fake *enginetest.FakeSession) *engine.Page {
	t.Helper()
	opts := engine.Options{
		SettleDelay:       time.Nanosecond,
		PollInterval:      5 * time.Millisecond,
		DefaultTimeout:    200 * time.Millisecond,
		NavigationTimeout: time.Second,
		SwitchSettle:      time.Nanosecond,
	}
	return engine.NewPage(context.Background(), fake, opts, zaptest.NewLogger(t))
}

// foundPoint is the payload of a successful measurement at the given
// viewport point.
func foundPoint(x, y float64) string {
	return fmt.Sprintf(`{"status":"found","count":1,"x":%g,"y":%g,"width":12,"height":12,"visible":true}`, x, y)
}

const notFoundPayload = `{"status":"notfound","count":0}`

// evalConst scripts every evaluation to the same payload.
func evalConst(payload string) func(string) (string, error) {
	return func(string) (string, error) { return payload, nil }
}

// evalSeq scripts evaluations to the given payloads in order, repeating
// the last one once the script runs out.
func evalSeq(payloads ...string) func(string) (string, error) {
	var mu sync.Mutex
	i := 0
	return func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		p := payloads[i]
		if i < len(payloads)-1 {
			i++
		}
		return p, nil
	}
}
