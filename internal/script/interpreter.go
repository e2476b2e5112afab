package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

// Interpreter executes parsed steps against a live page. It is stateful:
// frame blocks push a selector onto a stack that scopes later element
// steps, and tab steps change which page later steps drive. One
// interpreter serves one suite; it is not safe for concurrent use.
type Interpreter struct {
	root      *engine.Page
	current   *engine.Page
	log       *zap.Logger
	artifacts string

	frames  []string
	spawned []*engine.Page
	shots   int
}

// NewInterpreter builds an interpreter around the suite's starting page.
// Screenshots land under artifactsDir, which is created on first use.
func NewInterpreter(page *engine.Page, artifactsDir string, log *zap.Logger) *Interpreter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interpreter{
		root:      page,
		current:   page,
		log:       log.Named("script"),
		artifacts: artifactsDir,
	}
}

// Effect carries the side outputs of one executed step.
type Effect struct {
	// Screenshot is the path of an image written by this step, empty
	// otherwise.
	Screenshot string
}

// Execute runs a single step. Assertion steps report failures as plain
// errors so the caller treats them like any other step failure.
func (in *Interpreter) Execute(ctx context.Context, step Step) (Effect, error) {
	var eff Effect
	switch step.Verb {
	case VerbGoto:
		return eff, in.current.Goto(ctx, step.Arg)

	case VerbClick:
		return eff, in.locator(step.Arg).Click(ctx)
	case VerbDoubleClick:
		return eff, in.locator(step.Arg).DoubleClick(ctx)
	case VerbRightClick:
		return eff, in.locator(step.Arg).RightClick(ctx)
	case VerbHover:
		return eff, in.locator(step.Arg).Hover(ctx)
	case VerbType:
		return eff, in.locator(step.Arg).Type(ctx, step.Text)
	case VerbFill:
		return eff, in.locator(step.Arg).Fill(ctx, step.Text)
	case VerbSelect:
		return eff, in.locator(step.Arg).SelectOptions(ctx, step.Options...)
	case VerbCheck:
		return eff, in.locator(step.Arg).Check(ctx)
	case VerbUncheck:
		return eff, in.locator(step.Arg).Uncheck(ctx)
	case VerbDrag:
		return eff, in.locator(step.Arg).DragTo(ctx, in.locator(step.Text))

	case VerbPress:
		return eff, in.current.PressKey(ctx, step.Arg)

	case VerbWaitSelector:
		if len(in.frames) > 0 {
			return eff, in.frameHandle().WaitForSelector(ctx, step.Arg, step.Timeout)
		}
		return eff, in.current.WaitForSelector(ctx, step.Arg, step.Timeout)
	case VerbWaitURL:
		return eff, in.current.WaitForURL(ctx, step.Arg, step.Timeout)
	case VerbWaitLoad:
		return eff, in.current.WaitForLoad(ctx)

	case VerbAssertText:
		got, err := in.locator(step.Arg).TextContent(ctx)
		if err != nil {
			return eff, err
		}
		if !strings.Contains(got, step.Text) {
			return eff, fmt.Errorf("text of %s is %q, which does not contain %q", step.Arg, clip(got), step.Text)
		}
		return eff, nil
	case VerbAssertVisible:
		visible, err := in.locator(step.Arg).IsVisible(ctx)
		if err != nil {
			return eff, err
		}
		if !visible {
			return eff, fmt.Errorf("element %s is not visible", step.Arg)
		}
		return eff, nil

	case VerbFrame:
		in.frames = append(in.frames, step.Arg)
		return eff, nil
	case VerbEndFrame:
		if len(in.frames) == 0 {
			return eff, fmt.Errorf("end-frame without an open frame block")
		}
		in.frames = in.frames[:len(in.frames)-1]
		return eff, nil

	case VerbTabNewWait:
		child, err := in.current.WaitForNewTab(ctx, step.Timeout)
		if err != nil {
			return eff, err
		}
		in.spawned = append(in.spawned, child)
		in.current = child
		in.frames = nil
		return eff, nil
	case VerbTabSwitch:
		// Frame scope is tied to the page it was opened on.
		in.frames = nil
		if n, err := strconv.Atoi(step.Arg); err == nil {
			return eff, in.current.SwitchToTab(ctx, n)
		}
		return eff, in.current.SwitchToTab(ctx, step.Arg)

	case VerbDialog:
		decision := engine.DialogDecision{Accept: step.Accept, PromptText: step.Text}
		in.current.SetDialogHandler(func(engine.DialogRequest) engine.DialogDecision {
			return decision
		})
		return eff, nil

	case VerbScreenshot:
		path, err := in.CaptureScreenshot(ctx, step.Arg)
		if err != nil {
			return eff, err
		}
		eff.Screenshot = path
		return eff, nil

	case VerbEval:
		result, err := in.current.Evaluate(ctx, step.Text)
		if err != nil {
			return eff, err
		}
		in.log.Debug("eval result", zap.Int("line", step.Line), zap.Any("result", result))
		return eff, nil
	}
	return eff, fmt.Errorf("unhandled step verb %q", step.Verb)
}

// locator resolves a selector inside the current frame scope.
func (in *Interpreter) locator(sel string) *engine.Locator {
	if len(in.frames) == 0 {
		return in.current.Locator(sel)
	}
	return in.frameHandle().Locator(sel)
}

// frameHandle folds the frame stack into a handle on the innermost frame.
// Only called with at least one open frame block.
func (in *Interpreter) frameHandle() *engine.Frame {
	f := in.current.Frame(in.frames[0])
	for _, sel := range in.frames[1:] {
		f = f.Frame(sel)
	}
	return f
}

// screenshotter is the optional capture capability of a protocol session.
// The chromedp-backed session has it; the engine interface itself stays
// transport agnostic.
type screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// CaptureScreenshot renders the current page to a PNG under the artifact
// directory and returns the written path. Unnamed shots get a sequence
// number. The runner also calls this to capture failure evidence.
func (in *Interpreter) CaptureScreenshot(ctx context.Context, name string) (string, error) {
	shooter, ok := in.current.Protocol().(screenshotter)
	if !ok {
		return "", fmt.Errorf("session does not support screenshots")
	}
	img, err := shooter.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}
	in.shots++
	if name == "" {
		name = fmt.Sprintf("shot-%03d", in.shots)
	}
	if err := os.MkdirAll(in.artifacts, 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	path := filepath.Join(in.artifacts, sanitizeName(name)+".png")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

// Page exposes the page the next step would run against, for callers that
// need to inspect state after a suite finishes.
func (in *Interpreter) Page() *engine.Page {
	return in.current
}

// Close detaches the sessions of pages this interpreter spawned through
// tab steps. The starting page stays open; its owner disposes it.
func (in *Interpreter) Close() {
	for _, p := range in.spawned {
		if err := p.Close(); err != nil {
			in.log.Debug("closing spawned page", zap.Error(err))
		}
	}
	in.spawned = nil
}

// sanitizeName maps a screenshot name to a safe file stem.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}

// clip shortens long text for error messages.
func clip(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
