package recorder

import (
	"fmt"
	"strings"
	"sync"
)

// pressKeys is the set of key names worth recording as press steps.
// Printable keys reach the recorder through input events instead, so
// recording them here would double every character typed.
var pressKeys = map[string]bool{
	"Enter":  true,
	"Escape": true,
	"Tab":    true,
}

// StepUpdate describes one change to the recorded step list. Index is the
// position of the affected line; Replaced marks an in-place rewrite of an
// existing line, anything else is an append.
type StepUpdate struct {
	Index    int
	Line     string
	Replaced bool
}

// recordedStep keeps enough shape per line to coalesce follow-up events.
type recordedStep struct {
	verb     string
	selector string
	line     string
	seq      int64
}

// Translator folds captured events into step language lines. Bursty
// low-level events collapse into single steps: repeated input on a field
// rewrites one fill line, a dblclick absorbs its leading click, checkbox
// toggles keep only the final state and redirect chains keep the settled
// url. Safe for concurrent use.
type Translator struct {
	mu    sync.Mutex
	steps []recordedStep
	// interacted is true once a step since the last navigation could have
	// caused the next one. It decides between goto and wait-load.
	interacted bool
}

// NewTranslator returns an empty Translator.
func NewTranslator() *Translator {
	return &Translator{}
}

// Apply folds one event into the step list and reports the resulting
// update. ok is false when the event does not change the list.
func (t *Translator) Apply(ev CapturedEvent) (StepUpdate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case eventClick:
		if ev.Selector == "" {
			return StepUpdate{}, false
		}
		t.interacted = true
		return t.append(recordedStep{verb: "click", selector: ev.Selector, line: "click " + ev.Selector, seq: ev.Seq}), true

	case eventDoubleClick:
		if ev.Selector == "" {
			return StepUpdate{}, false
		}
		t.interacted = true
		step := recordedStep{verb: "doubleclick", selector: ev.Selector, line: "doubleclick " + ev.Selector, seq: ev.Seq}
		// The first click of the pair has already been recorded.
		if last, ok := t.last(); ok && last.verb == "click" && last.selector == ev.Selector {
			return t.replace(step), true
		}
		return t.append(step), true

	case eventContextMenu:
		if ev.Selector == "" {
			return StepUpdate{}, false
		}
		t.interacted = true
		return t.append(recordedStep{verb: "rightclick", selector: ev.Selector, line: "rightclick " + ev.Selector, seq: ev.Seq}), true

	case eventInput:
		return t.applyInput(ev)

	case eventChange:
		return t.applyChange(ev)

	case eventKeyDown:
		if !pressKeys[ev.Key] {
			return StepUpdate{}, false
		}
		t.interacted = true
		return t.append(recordedStep{verb: "press", line: "press " + ev.Key, seq: ev.Seq}), true

	case eventNavigate:
		return t.applyNavigate(ev)
	}
	return StepUpdate{}, false
}

func (t *Translator) applyInput(ev CapturedEvent) (StepUpdate, bool) {
	if ev.Selector == "" {
		return StepUpdate{}, false
	}
	last, hasLast := t.last()

	if ev.Value == "" {
		// The step grammar cannot express clearing a field. Typing and
		// then erasing everything leaves only the focusing click behind.
		if hasLast && last.verb == "fill" && last.selector == ev.Selector && ev.Seq >= last.seq {
			t.interacted = true
			return t.replace(recordedStep{verb: "click", selector: ev.Selector, line: "click " + ev.Selector, seq: ev.Seq}), true
		}
		return StepUpdate{}, false
	}

	t.interacted = true
	step := recordedStep{
		verb:     "fill",
		selector: ev.Selector,
		line:     fmt.Sprintf("fill %s :: %s", ev.Selector, flatten(ev.Value)),
		seq:      ev.Seq,
	}
	if hasLast && last.selector == ev.Selector {
		switch last.verb {
		case "fill":
			// Input events carry the whole field value, so only the newest
			// one matters. Binding calls may arrive out of order; a stale
			// value must not clobber a newer one.
			if ev.Seq < last.seq {
				return StepUpdate{}, false
			}
			return t.replace(step), true
		case "click":
			// The focusing click is implied by the fill.
			return t.replace(step), true
		}
	}
	return t.append(step), true
}

func (t *Translator) applyChange(ev CapturedEvent) (StepUpdate, bool) {
	if ev.Selector == "" {
		return StepUpdate{}, false
	}

	switch {
	case ev.Tag == "select":
		if len(ev.Options) == 0 {
			return StepUpdate{}, false
		}
		t.interacted = true
		step := recordedStep{
			verb:     "select",
			selector: ev.Selector,
			line:     fmt.Sprintf("select %s :: %s", ev.Selector, optionSpecs(ev.Options)),
			seq:      ev.Seq,
		}
		if last, ok := t.last(); ok && last.selector == ev.Selector && (last.verb == "select" || last.verb == "click") {
			return t.replace(step), true
		}
		return t.append(step), true

	case ev.InputType == "checkbox" || ev.InputType == "radio":
		verb := "check"
		if ev.InputType == "checkbox" && !ev.Checked {
			verb = "uncheck"
		}
		t.interacted = true
		step := recordedStep{verb: verb, selector: ev.Selector, line: verb + " " + ev.Selector, seq: ev.Seq}
		// Clicking the box fires click then change; the click line is
		// redundant, and a re-toggle only moves the final state.
		if last, ok := t.last(); ok && last.selector == ev.Selector {
			switch last.verb {
			case "click", "check", "uncheck":
				return t.replace(step), true
			}
		}
		return t.append(step), true
	}
	return StepUpdate{}, false
}

func (t *Translator) applyNavigate(ev CapturedEvent) (StepUpdate, bool) {
	if ev.URL == "" || ev.URL == "about:blank" {
		return StepUpdate{}, false
	}

	if t.interacted {
		// The navigation is a consequence of steps already recorded;
		// replay only needs to wait it out.
		t.interacted = false
		if last, ok := t.last(); ok && last.verb == "wait-load" {
			return StepUpdate{}, false
		}
		return t.append(recordedStep{verb: "wait-load", line: "wait-load", seq: ev.Seq}), true
	}

	step := recordedStep{verb: "goto", line: "goto " + ev.URL, seq: ev.Seq}
	if last, ok := t.last(); ok {
		switch last.verb {
		case "goto":
			// Redirect chain; keep the settled url.
			return t.replace(step), true
		case "wait-load":
			// Redirect landing after an interaction-driven navigation.
			return StepUpdate{}, false
		}
	}
	return t.append(step), true
}

// Lines returns a copy of the recorded step lines.
func (t *Translator) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := make([]string, len(t.steps))
	for i, s := range t.steps {
		lines[i] = s.line
	}
	return lines
}

// Script renders the recorded steps as a runnable suite body. An empty
// recording renders as the empty string.
func (t *Translator) Script() string {
	lines := t.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func (t *Translator) last() (recordedStep, bool) {
	if len(t.steps) == 0 {
		return recordedStep{}, false
	}
	return t.steps[len(t.steps)-1], true
}

func (t *Translator) append(s recordedStep) StepUpdate {
	t.steps = append(t.steps, s)
	return StepUpdate{Index: len(t.steps) - 1, Line: s.line}
}

func (t *Translator) replace(s recordedStep) StepUpdate {
	i := len(t.steps) - 1
	t.steps[i] = s
	return StepUpdate{Index: i, Line: s.line, Replaced: true}
}

// optionSpecs renders selected options as a select payload. Labels are
// the readable choice, but the payload's comma separator forces values or
// indexes for options whose label would not round trip.
func optionSpecs(opts []CapturedOption) string {
	specs := make([]string, 0, len(opts))
	for _, opt := range opts {
		switch {
		case opt.Label != "" && !strings.Contains(opt.Label, ","):
			specs = append(specs, "label="+opt.Label)
		case opt.Value != "" && !strings.Contains(opt.Value, ","):
			specs = append(specs, "value="+opt.Value)
		default:
			specs = append(specs, fmt.Sprintf("index=%d", opt.Index))
		}
	}
	return strings.Join(specs, ",")
}

// flatten folds value text onto one line. The step grammar is line
// oriented and has no escape syntax.
func flatten(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}
