// Package runner executes suite files against a shared browser with
// bounded parallelism. Each suite gets its own isolated page; results
// stream to a JSONL file as they land and aggregate into a run manifest
// under the artifact directory.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/engine"
	"github.com/xkilldash9x/waldo-cli/internal/script"
)

// Fixed artifact file names inside a run directory.
const (
	ManifestName = "manifest.json"
	StreamName   = "events.jsonl"
)

// PageFactory provides protocol sessions for suites. The production
// implementation is the shared Chrome process; tests substitute fakes.
type PageFactory interface {
	NewPage(ctx context.Context) (engine.ProtocolSession, error)
	DisposePage(ctx context.Context, sess engine.ProtocolSession) error
}

// Runner drives suites to completion.
type Runner struct {
	cfg    *config.Config
	log    *zap.Logger
	pages  PageFactory
	mirror io.Writer
}

// New builds a runner around a page factory.
func New(cfg *config.Config, pages PageFactory, log *zap.Logger) (*Runner, error) {
	if cfg == nil || pages == nil {
		return nil, fmt.Errorf("cannot initialize runner with nil dependencies")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: log.Named("runner"), pages: pages}, nil
}

// MirrorStream duplicates every stream event to w in addition to the
// run's events.jsonl, for callers that want live output on a terminal or
// pipe.
func (r *Runner) MirrorStream(w io.Writer) {
	r.mirror = w
}

// RunDir resolves the artifact directory of a run id under the
// configured artifacts root.
func (r *Runner) RunDir(runID string) (string, error) {
	root, err := config.ExpandPath(r.cfg.Runner.ArtifactsDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, runID), nil
}

// Run parses and executes the given suite files. A file that fails to
// parse becomes a failed suite in the manifest rather than aborting the
// run. The returned manifest is also written to the run directory; the
// error covers run infrastructure only, never step outcomes.
func (r *Runner) Run(ctx context.Context, paths []string) (*schemas.RunManifest, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no suite files given")
	}

	runID := uuid.NewString()
	runDir, err := r.RunDir(runID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	streamFile, err := os.Create(filepath.Join(runDir, StreamName))
	if err != nil {
		return nil, fmt.Errorf("creating event stream: %w", err)
	}
	defer streamFile.Close()

	var out io.Writer = streamFile
	if r.mirror != nil {
		out = io.MultiWriter(streamFile, r.mirror)
	}
	stream := NewStreamWriter(out, r.log)

	started := time.Now()
	manifest := &schemas.RunManifest{
		RunID:     runID,
		Title:     r.cfg.Report.Title,
		StartedAt: started,
		Suites:    make([]schemas.SuiteResult, len(paths)),
	}

	r.log.Info("run starting",
		zap.String("run_id", runID),
		zap.Int("suites", len(paths)),
		zap.Int("concurrency", r.cfg.Runner.Concurrency),
		zap.String("artifacts", runDir))
	stream.Emit(schemas.StreamEvent{Type: schemas.EventRunStarted, RunID: runID})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(r.cfg.Runner.Concurrency)
	for i, path := range paths {
		suite, err := script.ParseFile(path)
		if err != nil {
			base := filepath.Base(path)
			res := schemas.SuiteResult{
				Name:      strings.TrimSuffix(base, filepath.Ext(base)),
				Path:      path,
				Status:    schemas.SuiteFailed,
				Error:     err.Error(),
				StartedAt: time.Now(),
			}
			manifest.Suites[i] = res
			stream.Emit(schemas.StreamEvent{Type: schemas.EventSuiteResult, RunID: runID, Suite: res.Name, Status: string(res.Status)})
			r.log.Error("suite failed to parse", zap.String("path", path), zap.Error(err))
			if r.cfg.Runner.FailFast {
				cancel()
			}
			continue
		}

		i := i
		g.Go(func() error {
			// Each goroutine owns a distinct manifest slot; failures are
			// results, not errors, so one bad suite never tears the group
			// down on its own.
			res := r.runSuite(gctx, runID, runDir, stream, suite)
			manifest.Suites[i] = res
			if res.Status == schemas.SuiteFailed && r.cfg.Runner.FailFast {
				r.log.Warn("fail-fast: canceling remaining suites", zap.String("suite", suite.Name))
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	manifest.Duration = time.Since(started)
	manifest.Recount()

	runStatus := schemas.SuitePassed
	if manifest.Failed() {
		runStatus = schemas.SuiteFailed
	}
	totals := manifest.Totals
	stream.Emit(schemas.StreamEvent{Type: schemas.EventRunFinished, RunID: runID, Status: string(runStatus), Totals: &totals})

	if err := writeManifest(filepath.Join(runDir, ManifestName), manifest); err != nil {
		return manifest, err
	}

	r.log.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", string(runStatus)),
		zap.Int("passed", totals.Passed),
		zap.Int("failed", totals.Failed),
		zap.Int("skipped", totals.Skipped),
		zap.Duration("took", manifest.Duration))
	return manifest, nil
}

// runSuite executes one parsed suite on a fresh page. The first failing
// step fails the suite; the remaining steps are recorded as skipped so
// the report still shows the full script.
func (r *Runner) runSuite(ctx context.Context, runID, runDir string, stream *StreamWriter, suite *script.Suite) schemas.SuiteResult {
	log := r.log.With(zap.String("suite", suite.Name))
	res := schemas.SuiteResult{
		Name:      suite.Name,
		Path:      suite.Path,
		Status:    schemas.SuitePassed,
		StartedAt: time.Now(),
		Steps:     make([]schemas.StepResult, 0, len(suite.Steps)),
	}
	stream.Emit(schemas.StreamEvent{Type: schemas.EventSuiteStarted, RunID: runID, Suite: suite.Name})
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		stream.Emit(schemas.StreamEvent{Type: schemas.EventSuiteResult, RunID: runID, Suite: suite.Name, Status: string(res.Status)})
	}()

	if ctx.Err() != nil {
		res.Status = schemas.SuiteSkipped
		res.Error = "run canceled before the suite started"
		for i, step := range suite.Steps {
			res.Steps = append(res.Steps, schemas.StepResult{
				Index: i + 1, Line: step.Line, Verb: string(step.Verb), Text: step.Raw,
				Status: schemas.StepSkipped, StartedAt: time.Now(),
			})
		}
		log.Info("suite skipped")
		return res
	}

	log.Info("suite starting", zap.Int("steps", len(suite.Steps)))

	proto, err := r.pages.NewPage(ctx)
	if err != nil {
		res.Status = schemas.SuiteFailed
		res.Error = fmt.Sprintf("opening page: %v", err)
		log.Error("failed to open page", zap.Error(err))
		return res
	}
	defer func() {
		if err := r.pages.DisposePage(ctx, proto); err != nil {
			log.Warn("disposing page", zap.Error(err))
		}
	}()

	page := engine.NewPage(ctx, proto, engineOptions(r.cfg.Engine), log)
	interp := script.NewInterpreter(page, filepath.Join(runDir, suite.Name), log)
	defer interp.Close()

	failed := false
	for i, step := range suite.Steps {
		sr := schemas.StepResult{
			Index:     i + 1,
			Line:      step.Line,
			Verb:      string(step.Verb),
			Text:      step.Raw,
			StartedAt: time.Now(),
		}
		if failed || ctx.Err() != nil {
			sr.Status = schemas.StepSkipped
		} else {
			stepCtx, cancelStep := context.WithTimeout(ctx, r.cfg.Runner.StepTimeout)
			eff, err := interp.Execute(stepCtx, step)
			cancelStep()
			sr.Duration = time.Since(sr.StartedAt)
			sr.Screenshot = eff.Screenshot
			if err != nil {
				sr.Status = schemas.StepFailed
				sr.Error = err.Error()
				failed = true
				res.Status = schemas.SuiteFailed
				log.Warn("step failed",
					zap.Int("line", step.Line),
					zap.String("step", step.Raw),
					zap.Error(err))
				if shot, shotErr := interp.CaptureScreenshot(ctx, fmt.Sprintf("failed-line-%03d", step.Line)); shotErr == nil {
					sr.Screenshot = shot
				} else {
					log.Debug("no failure screenshot", zap.Error(shotErr))
				}
			} else {
				sr.Status = schemas.StepPassed
				log.Debug("step passed",
					zap.Int("line", step.Line),
					zap.String("step", step.Raw),
					zap.Duration("took", sr.Duration))
			}
		}
		res.Steps = append(res.Steps, sr)
		stream.Emit(schemas.StreamEvent{Type: schemas.EventStepResult, RunID: runID, Suite: suite.Name, Status: string(sr.Status), Step: &sr})
	}

	passed, failedCount, skipped := res.Counts()
	log.Info("suite finished",
		zap.String("status", string(res.Status)),
		zap.Int("passed", passed),
		zap.Int("failed", failedCount),
		zap.Int("skipped", skipped))
	return res
}

// engineOptions maps the timing config onto the engine's option set.
func engineOptions(c config.EngineConfig) engine.Options {
	return engine.Options{
		SettleDelay:       c.SettleDelay,
		PollInterval:      c.PollInterval,
		DefaultTimeout:    c.DefaultTimeout,
		NavigationTimeout: c.NavigationTimeout,
		SwitchSettle:      c.SwitchSettle,
		SlowMo:            c.SlowMo,
	}
}

// writeManifest renders the manifest as indented JSON next to the stream.
func writeManifest(path string, m *schemas.RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
