// Package script parses and runs waldo suite files. A suite is a plain
// text file with one step per line: a lower-case verb, its arguments and
// an optional " :: " payload. Blank lines and lines starting with "#" are
// ignored. The parser turns a file into a flat []Step; the Interpreter
// executes steps against a live engine page, tracking frame blocks and
// tab switches as it goes.
package script

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

// Verb identifies what a step does.
type Verb string

// The step vocabulary. Verbs are matched case-insensitively at parse
// time; the constants hold the canonical lower-case form.
const (
	VerbGoto          Verb = "goto"
	VerbClick         Verb = "click"
	VerbDoubleClick   Verb = "doubleclick"
	VerbRightClick    Verb = "rightclick"
	VerbHover         Verb = "hover"
	VerbType          Verb = "type"
	VerbFill          Verb = "fill"
	VerbSelect        Verb = "select"
	VerbCheck         Verb = "check"
	VerbUncheck       Verb = "uncheck"
	VerbDrag          Verb = "drag"
	VerbPress         Verb = "press"
	VerbWaitSelector  Verb = "wait-selector"
	VerbWaitURL       Verb = "wait-url"
	VerbWaitLoad      Verb = "wait-load"
	VerbAssertText    Verb = "assert-text"
	VerbAssertVisible Verb = "assert-visible"
	VerbFrame         Verb = "frame"
	VerbEndFrame      Verb = "end-frame"
	VerbTabNewWait    Verb = "tab-new-wait"
	VerbTabSwitch     Verb = "tab-switch"
	VerbDialog        Verb = "dialog"
	VerbScreenshot    Verb = "screenshot"
	VerbEval          Verb = "eval"
)

// Step is one executable line of a suite.
type Step struct {
	Verb Verb
	// Line is the 1-based line number the step was parsed from.
	Line int
	// Raw preserves the original line text for results and logs.
	Raw string
	// Arg is the verb's primary argument: a selector for element verbs,
	// the url for goto, the key name for press, the pattern for wait-url,
	// the tab reference for tab-switch, the file name for screenshot.
	Arg string
	// Text is the payload after " :: ": typed text, assertion text, the
	// drag target selector, the dialog prompt answer or the eval script.
	Text string
	// Options holds the parsed option specs of a select step.
	Options []engine.SelectOption
	// Timeout is the optional trailing duration of wait and tab steps.
	// Zero means the engine default applies.
	Timeout time.Duration
	// Accept records the dialog step's decision.
	Accept bool
}

// Suite is one parsed script file.
type Suite struct {
	// Name is the suite's display name, normally the file base name
	// without its extension.
	Name string
	// Path is the source file the suite was read from, empty when the
	// suite was parsed from an in-memory reader.
	Path  string
	Steps []Step
}

// ParseError reports a line the parser rejected.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}
