package script

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

// payloadSep divides a step's head (verb plus selector) from its payload.
// The padding is mandatory, so selectors containing "::" pseudo-classes
// survive untouched.
const payloadSep = " :: "

// maxLineBytes bounds a single script line. Anything longer is almost
// certainly not a hand-written step.
const maxLineBytes = 1024 * 1024

// ParseFile reads and parses the suite at path. The suite name is the
// file base name without its extension.
func ParseFile(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	suite, err := Parse(name, f)
	if err != nil {
		return nil, err
	}
	suite.Path = path
	return suite, nil
}

// Parse reads a suite from r. Blank lines and "#" comments are skipped;
// every other line must be a valid step. Frame blocks are checked for
// balance so an unmatched end-frame fails at parse time, not mid-run.
func Parse(name string, r io.Reader) (*Suite, error) {
	suite := &Suite{Name: name}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	frameDepth := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		step, err := parseLine(name, lineNo, line)
		if err != nil {
			return nil, err
		}
		switch step.Verb {
		case VerbFrame:
			frameDepth++
		case VerbEndFrame:
			if frameDepth == 0 {
				return nil, &ParseError{File: name, Line: lineNo, Msg: "end-frame without a matching frame"}
			}
			frameDepth--
		}
		suite.Steps = append(suite.Steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if frameDepth > 0 {
		return nil, &ParseError{File: name, Line: lineNo, Msg: fmt.Sprintf("%d frame block(s) still open at end of file", frameDepth)}
	}
	return suite, nil
}

// parseLine turns one non-blank line into a Step. The head before the
// payload separator is split into a verb and the rest of the line; verbs
// are matched case-insensitively.
func parseLine(file string, lineNo int, raw string) (Step, error) {
	head, tail, hasTail := strings.Cut(raw, payloadSep)
	tail = strings.TrimSpace(tail)

	word, rest, _ := strings.Cut(strings.TrimSpace(head), " ")
	arg := strings.TrimSpace(rest)

	step := Step{Verb: Verb(strings.ToLower(word)), Line: lineNo, Raw: raw}
	fail := func(format string, a ...interface{}) (Step, error) {
		return Step{}, &ParseError{File: file, Line: lineNo, Msg: fmt.Sprintf(format, a...)}
	}

	switch step.Verb {
	case VerbGoto:
		if arg == "" {
			return fail("goto needs a url")
		}
		step.Arg = arg

	case VerbClick, VerbDoubleClick, VerbRightClick, VerbHover,
		VerbCheck, VerbUncheck, VerbAssertVisible, VerbFrame:
		if arg == "" {
			return fail("%s needs a selector", step.Verb)
		}
		step.Arg = arg

	case VerbType, VerbFill, VerbAssertText:
		if arg == "" {
			return fail("%s needs a selector", step.Verb)
		}
		if !hasTail {
			return fail("%s needs a %q payload", step.Verb, payloadSep)
		}
		step.Arg = arg
		step.Text = tail

	case VerbDrag:
		if arg == "" {
			return fail("drag needs a source selector")
		}
		if !hasTail || tail == "" {
			return fail("drag needs a target selector after %q", payloadSep)
		}
		step.Arg = arg
		step.Text = tail

	case VerbSelect:
		if arg == "" {
			return fail("select needs a selector")
		}
		if !hasTail || tail == "" {
			return fail("select needs at least one option spec after %q", payloadSep)
		}
		opts, err := parseOptionSpecs(tail)
		if err != nil {
			return fail("select: %v", err)
		}
		step.Arg = arg
		step.Options = opts

	case VerbPress:
		if arg == "" {
			return fail("press needs a key name")
		}
		step.Arg = arg

	case VerbWaitSelector, VerbWaitURL:
		if arg == "" {
			return fail("%s needs an argument", step.Verb)
		}
		step.Arg, step.Timeout = splitTimeout(arg)
		if step.Arg == "" {
			return fail("%s needs an argument before the timeout", step.Verb)
		}

	case VerbWaitLoad, VerbEndFrame:
		if arg != "" {
			return fail("%s takes no arguments", step.Verb)
		}

	case VerbTabNewWait:
		if arg != "" {
			d, err := time.ParseDuration(arg)
			if err != nil {
				return fail("tab-new-wait: bad timeout %q", arg)
			}
			step.Timeout = d
		}

	case VerbTabSwitch:
		if arg == "" {
			return fail("tab-switch needs a tab index or target id")
		}
		step.Arg = arg

	case VerbDialog:
		switch arg {
		case "accept":
			step.Accept = true
		case "dismiss":
			step.Accept = false
		default:
			return fail("dialog needs %q or %q, got %q", "accept", "dismiss", arg)
		}
		step.Text = tail

	case VerbScreenshot:
		// The name is optional; the interpreter numbers unnamed shots.
		step.Arg = arg

	case VerbEval:
		if !hasTail || tail == "" {
			return fail("eval needs a script after %q", payloadSep)
		}
		step.Text = tail

	default:
		return fail("unknown step %q", word)
	}
	return step, nil
}

// splitTimeout peels a trailing duration token off an argument. Selectors
// may contain spaces, so only the final whitespace-separated token is
// considered, and only when it parses as a duration.
func splitTimeout(arg string) (string, time.Duration) {
	idx := strings.LastIndexByte(arg, ' ')
	if idx < 0 {
		return arg, 0
	}
	d, err := time.ParseDuration(strings.TrimSpace(arg[idx+1:]))
	if err != nil {
		return arg, 0
	}
	return strings.TrimSpace(arg[:idx]), d
}

// parseOptionSpecs parses a select payload: comma-separated specs of the
// form label=X, value=X or index=N. A bare token is shorthand for a label
// match. Labels containing commas are not representable; use value= for
// those options.
func parseOptionSpecs(s string) ([]engine.SelectOption, error) {
	parts := strings.Split(s, ",")
	opts := make([]engine.SelectOption, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty option spec")
		}
		mode, val, ok := strings.Cut(part, "=")
		if !ok {
			opts = append(opts, engine.OptionLabel(part))
			continue
		}
		switch mode {
		case "label":
			opts = append(opts, engine.OptionLabel(val))
		case "value":
			opts = append(opts, engine.OptionValue(val))
		case "index":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("bad option index %q", val)
			}
			opts = append(opts, engine.OptionIndex(n))
		default:
			return nil, fmt.Errorf("unknown option mode %q (want label, value or index)", mode)
		}
	}
	return opts, nil
}
