package engine

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// Status tags shared between the synthesized page-side scripts and the Go
// side. Every DOM-facing script returns exactly one object carrying one of
// these tags; the Go side never has to parse free-form exceptions.
const (
	statusFound         = "found"
	statusNotFound      = "notfound"
	statusAmbiguous     = "ambiguous"
	statusOutOfRange    = "outofrange"
	statusNotSelectable = "notselectable"
	statusNotCheckable  = "notcheckable"
	statusNotEditable   = "noteditable"
	statusOptionMiss    = "optionmiss"
	statusFrameDenied   = "framedenied"
	statusNotReady      = "notready"
)

// queryOutcome is the wire shape of every script result. The fields are a
// union over all operation kinds; which ones are meaningful depends on the
// status tag and the operation that produced it.
type queryOutcome struct {
	Status   string `json:"status"`
	Selector string `json:"selector,omitempty"`
	Count    int    `json:"count,omitempty"`
	Index    int    `json:"index,omitempty"`
	Depth    int    `json:"depth,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Type     string `json:"type,omitempty"`
	Option   string `json:"option,omitempty"`

	// Geometry payload (measure and check operations).
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Width   float64 `json:"width,omitempty"`
	Height  float64 `json:"height,omitempty"`
	Visible bool    `json:"visible,omitempty"`
	Match   bool    `json:"match,omitempty"`

	// Read payloads.
	Text    string `json:"text,omitempty"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present,omitempty"`
	Flag    bool   `json:"flag,omitempty"`
	Applied int    `json:"applied,omitempty"`
}

// toError converts a failure outcome into its typed error. rawSelector is
// the author's original selector string, which every error carries so the
// failure can be correlated back to the calling test without knowledge of
// canonicalization. A found outcome yields nil.
func (o *queryOutcome) toError(rawSelector string) error {
	switch o.Status {
	case statusFound:
		return nil
	case statusNotFound:
		return &NotFoundError{Selector: rawSelector}
	case statusAmbiguous:
		return &AmbiguousError{Selector: rawSelector, Count: o.Count}
	case statusOutOfRange:
		return &OutOfRangeError{Selector: rawSelector, Count: o.Count, Index: o.Index}
	case statusNotSelectable:
		return &NotSelectableError{Selector: rawSelector, Tag: o.Tag}
	case statusNotCheckable:
		return &NotCheckableError{Selector: rawSelector, Tag: o.Tag, Type: o.Type}
	case statusNotEditable:
		return &NotEditableError{Selector: rawSelector, Tag: o.Tag}
	case statusOptionMiss:
		return &NotFoundError{Selector: fmt.Sprintf("%s in %s", o.Option, rawSelector)}
	case statusFrameDenied:
		return &FrameNotAccessibleError{Selector: o.Selector, Depth: o.Depth, Count: o.Count}
	default:
		return fmt.Errorf("script returned unrecognized outcome status %q for selector %q", o.Status, rawSelector)
	}
}

// jsonEncode marshals v for safe embedding into a synthesized script.
// Strings come out quoted and escaped, so selector text can never break out
// of its expression context.
func jsonEncode(v interface{}) string {
	b, err := jsonFast.Marshal(v)
	if err != nil {
		// Only unmarshalable types (channels, funcs) can land here, and the
		// engine never passes those.
		return "null"
	}
	return string(b)
}
