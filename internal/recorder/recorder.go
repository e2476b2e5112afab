// Package recorder turns live browser interactions into step language
// lines. It instruments one session with an injected capture script,
// folds the events the script posts back into a growing script, and
// serves a websocket live preview of both the steps and the page.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/waldo-cli/internal/config"
)

// Session is the slice of browser capability recording needs: script
// injection into current and future documents, a page-to-process binding
// and expression evaluation for snapshots.
type Session interface {
	ExposeBinding(ctx context.Context, name string, fn func(payload string)) error
	InjectOnNewDocument(ctx context.Context, script string) error
	Evaluate(ctx context.Context, expr string, out interface{}) error
}

// Recorder instruments one browser session, folds captured events into a
// step list and fans updates out to preview clients.
type Recorder struct {
	session    Session
	cfg        config.RecorderConfig
	log        *zap.Logger
	translator *Translator
	server     *PreviewServer
	limiter    *rate.Limiter
	sessionID  string

	events chan CapturedEvent

	mu      sync.Mutex
	cancel  context.CancelFunc
	addr    string
	started bool

	wg sync.WaitGroup
}

// New builds a Recorder around sess. Nothing is captured until Start.
func New(sess Session, cfg config.RecorderConfig, log *zap.Logger) (*Recorder, error) {
	if sess == nil || log == nil {
		return nil, fmt.Errorf("cannot initialize recorder with nil dependencies")
	}

	eps := cfg.EventsPerSecond
	if eps <= 0 {
		eps = 25
	}
	burst := int(eps)
	if burst < 1 {
		burst = 1
	}

	r := &Recorder{
		session:    sess,
		cfg:        cfg,
		log:        log.Named("recorder"),
		translator: NewTranslator(),
		limiter:    rate.NewLimiter(rate.Limit(eps), burst),
		sessionID:  uuid.NewString(),
		events:     make(chan CapturedEvent, 256),
	}
	r.server = NewPreviewServer(r.sessionID, r.translator.Lines, r.log)
	return r, nil
}

// Start installs the capture script, starts the preview server and begins
// folding events. Recording continues until Close or until ctx ends.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("recorder already started")
	}
	r.started = true
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	handler := func(payload string) {
		var ev CapturedEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			r.log.Debug("Discarding malformed capture payload.", zap.Error(err))
			return
		}
		select {
		case r.events <- ev:
		case <-runCtx.Done():
		}
	}
	if err := r.session.ExposeBinding(ctx, bindingName, handler); err != nil {
		cancel()
		return fmt.Errorf("exposing capture binding: %w", err)
	}
	if err := r.session.InjectOnNewDocument(ctx, captureScript); err != nil {
		cancel()
		return fmt.Errorf("installing capture script: %w", err)
	}
	// Injection only reaches future documents; arm the one already open
	// too. The page may still be navigating, so this is best effort.
	if err := r.session.Evaluate(ctx, captureScript, nil); err != nil {
		r.log.Debug("Could not arm the current document.", zap.Error(err))
	}

	addr, err := r.server.Start(r.cfg.ListenAddr)
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	r.cancel = cancel
	r.addr = addr
	r.mu.Unlock()

	r.wg.Add(2)
	go r.eventLoop(runCtx)
	go r.snapshotLoop(runCtx)

	r.log.Info("Recording started.",
		zap.String("session_id", r.sessionID),
		zap.String("preview", "http://"+addr))
	return nil
}

// Close stops event processing and the preview server. The recorded
// steps stay readable afterwards.
func (r *Recorder) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	err := r.server.Close()
	r.wg.Wait()
	r.log.Info("Recording stopped.", zap.Int("steps", len(r.Lines())))
	return err
}

// Lines returns the step lines recorded so far.
func (r *Recorder) Lines() []string {
	return r.translator.Lines()
}

// Script renders the recorded steps as a suite body ready for saving.
func (r *Recorder) Script() string {
	return r.translator.Script()
}

// PreviewURL reports where the live preview is served; empty before
// Start.
func (r *Recorder) PreviewURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addr == "" {
		return ""
	}
	return "http://" + r.addr
}

// eventLoop serializes translation and fan-out. The limiter keeps a
// typing burst from flooding preview clients; the channel buffers while
// it holds events back.
func (r *Recorder) eventLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// The user's final interactions may still sit in the buffer;
			// fold them into the script even though nobody is watching.
			r.drainEvents()
			return
		case ev := <-r.events:
			upd, ok := r.translator.Apply(ev)
			if !ok {
				continue
			}
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
			r.server.Broadcast(Message{Type: MessageStep, Index: upd.Index, Line: upd.Line, Replaced: upd.Replaced})
		}
	}
}

func (r *Recorder) drainEvents() {
	for {
		select {
		case ev := <-r.events:
			r.translator.Apply(ev)
		default:
			return
		}
	}
}

// snapshotLoop periodically captures the page for the preview frame.
// Unchanged captures are not re-announced.
func (r *Recorder) snapshotLoop(ctx context.Context) {
	defer r.wg.Done()

	interval := r.cfg.SnapshotInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSum uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var snap pageSnapshot
			evalCtx, cancel := context.WithTimeout(ctx, interval)
			err := r.session.Evaluate(evalCtx, snapshotExpr, &snap)
			cancel()
			if err != nil {
				r.log.Debug("Snapshot evaluation failed.", zap.Error(err))
				continue
			}

			body, err := SanitizeSnapshot(snap.HTML, snap.URL)
			if err != nil {
				r.log.Debug("Snapshot rejected.", zap.Error(err))
				continue
			}

			sum := snapshotSum(snap.Title, snap.URL, body)
			if sum == lastSum {
				continue
			}
			lastSum = sum

			r.server.SetSnapshot(snap.Title, snap.URL, body)
			r.server.Broadcast(Message{Type: MessageSnapshot, Title: snap.Title, URL: snap.URL, Size: len(body)})
		}
	}
}
