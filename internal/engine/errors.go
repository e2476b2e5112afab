package engine

import (
	"fmt"
	"time"
)

// NotFoundError reports a selector that matched zero elements.
type NotFoundError struct {
	Selector string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no element matches selector %q", e.Selector)
}

// AmbiguousError reports a strict-mode selector that matched more than one
// element. Strict resolution refuses to guess which one the author meant.
type AmbiguousError struct {
	Selector string
	Count    int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("selector %q matched %d elements; narrow it down or use .first(), .last() or .nth(n)",
		e.Selector, e.Count)
}

// OutOfRangeError reports an nth(n) request outside [0, count).
type OutOfRangeError struct {
	Selector string
	Count    int
	Index    int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("index %d is out of range for selector %q (%d matches)",
		e.Index, e.Selector, e.Count)
}

// NotSelectableError reports a select operation against an element that is
// not a <select> control.
type NotSelectableError struct {
	Selector string
	Tag      string
}

func (e *NotSelectableError) Error() string {
	return fmt.Sprintf("element %q is not a <select> element (got <%s>)", e.Selector, e.Tag)
}

// NotCheckableError reports a check or uncheck against an element that is
// not a checkbox or radio input.
type NotCheckableError struct {
	Selector string
	Tag      string
	Type     string
}

func (e *NotCheckableError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("element %q is not checkable (got <%s type=%q>)", e.Selector, e.Tag, e.Type)
	}
	return fmt.Sprintf("element %q is not checkable (got <%s>)", e.Selector, e.Tag)
}

// NotEditableError reports a fill against an element that accepts no value,
// is not a text control and is not content-editable.
type NotEditableError struct {
	Selector string
	Tag      string
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("element %q is not editable (got <%s>)", e.Selector, e.Tag)
}

// FrameNotAccessibleError reports a frame chain step whose iframe could not
// be located as exactly one element, or whose nested document is not
// reachable (cross-origin). It is deliberately distinct from NotFoundError:
// it means a structural precondition of the whole operation failed, not that
// the target element is missing.
type FrameNotAccessibleError struct {
	Selector string
	Depth    int
	Count    int
}

func (e *FrameNotAccessibleError) Error() string {
	if e.Count == 1 {
		return fmt.Sprintf("iframe %q (chain depth %d) has no accessible document; cross-origin frames cannot be entered",
			e.Selector, e.Depth)
	}
	return fmt.Sprintf("iframe %q (chain depth %d) matched %d elements, need exactly one",
		e.Selector, e.Depth, e.Count)
}

// TimeoutError reports a wait that ran out of time. LastState carries the
// last observed condition state (current URL, match count) so the failure is
// diagnosable without re-running.
type TimeoutError struct {
	Op        string
	Timeout   time.Duration
	LastState string
}

func (e *TimeoutError) Error() string {
	if e.LastState == "" {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("%s timed out after %s (last state: %s)", e.Op, e.Timeout, e.LastState)
}
