package engine

import (
	"fmt"
	"strings"
)

// The expression builder synthesizes self-contained IIFEs that run inside
// the page. Every script follows the same skeleton: acquire the working
// document (descending iframes when a chain is present), gather candidate
// nodes for the selector, apply cardinality to pick exactly one, then run
// the operation body. All exits return a single flat object tagged with a
// status string; scripts never throw for conditions the engine has to
// reason about.

// gatherFragment emits the candidate collection step. It expects `doc` in
// scope and leaves `nodes` defined.
func gatherFragment(sel Selector) string {
	q := jsonEncode(sel.Canonical)
	if sel.Kind == KindXPath {
		return fmt.Sprintf(`  const snap = doc.evaluate(%s, doc, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  const nodes = [];
  for (let i = 0; i < snap.snapshotLength; i++) nodes.push(snap.snapshotItem(i));
`, q)
	}
	return fmt.Sprintf("  const nodes = Array.from(doc.querySelectorAll(%s));\n", q)
}

// pickFragment applies cardinality. It expects `nodes` in scope and leaves
// `el` defined, or returns early with a notfound, ambiguous or outofrange
// outcome.
func pickFragment(sel Selector, card Cardinality) string {
	raw := jsonEncode(sel.Raw)
	notFound := fmt.Sprintf("  if (nodes.length === 0) return {status: \"notfound\", selector: %s, count: 0};\n", raw)

	switch card.kind {
	case cardFirst:
		return notFound + "  const el = nodes[0];\n"
	case cardLast:
		return notFound + "  const el = nodes[nodes.length - 1];\n"
	case cardNth:
		// nth is judged purely against the match count; zero matches is an
		// out-of-range index, not a missing element.
		return fmt.Sprintf(`  if (%d < 0 || %d >= nodes.length) return {status: "outofrange", selector: %s, count: nodes.length, index: %d};
  const el = nodes[%d];
`, card.n, card.n, raw, card.n, card.n)
	default:
		return notFound + fmt.Sprintf(`  if (nodes.length > 1) return {status: "ambiguous", selector: %s, count: nodes.length};
  const el = nodes[0];
`, raw)
	}
}

// measureLines computes the dispatch point for `el` in top-viewport
// coordinates. Elements inside same-origin iframes get each ancestor
// frame's offset added, because input dispatch coordinates are always
// relative to the main frame's viewport.
const measureLines = `  el.scrollIntoView({block: "center", inline: "center"});
  const rect = el.getBoundingClientRect();
  const style = (el.ownerDocument.defaultView || window).getComputedStyle(el);
  const visible = rect.width > 0 && rect.height > 0 &&
    style.display !== "none" && style.visibility !== "hidden" && style.opacity !== "0";
  let x = rect.left + rect.width / 2;
  let y = rect.top + rect.height / 2;
  let win = el.ownerDocument.defaultView;
  while (win && win.frameElement) {
    const fr = win.frameElement.getBoundingClientRect();
    x += fr.left + win.frameElement.clientLeft;
    y += fr.top + win.frameElement.clientTop;
    win = win.parent === win ? null : win.parent;
  }
`

func assemble(chain []Selector, sel Selector, card Cardinality, body string) string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	b.WriteString(documentFragment(chain, false))
	b.WriteString(gatherFragment(sel))
	b.WriteString(pickFragment(sel, card))
	b.WriteString(body)
	b.WriteString("})()")
	return b.String()
}

// buildMeasureExpr produces the geometry script behind every pointer verb.
func buildMeasureExpr(chain []Selector, sel Selector, card Cardinality) string {
	body := measureLines +
		"  return {status: \"found\", count: nodes.length, x: x, y: y, width: rect.width, height: rect.height, visible: visible};\n"
	return assemble(chain, sel, card, body)
}

// buildTextExpr reads the element's text content.
func buildTextExpr(chain []Selector, sel Selector, card Cardinality) string {
	body := "  return {status: \"found\", count: nodes.length, text: el.textContent || \"\"};\n"
	return assemble(chain, sel, card, body)
}

// buildAttributeExpr reads an attribute. The "value" pseudo-attribute on
// form controls reads live control state instead of the static markup
// attribute, since that is what the user actually sees.
func buildAttributeExpr(chain []Selector, sel Selector, card Cardinality, name string) string {
	body := fmt.Sprintf(`  const name = %s;
  const tag = el.tagName;
  if (name === "value" && (tag === "INPUT" || tag === "TEXTAREA" || tag === "SELECT")) {
    return {status: "found", count: nodes.length, value: String(el.value), present: true};
  }
  const v = el.getAttribute(name);
  return {status: "found", count: nodes.length, value: v === null ? "" : v, present: v !== null};
`, jsonEncode(name))
	return assemble(chain, sel, card, body)
}

// ElementState enumerates the boolean predicates a locator can read.
type ElementState int

const (
	StateVisible ElementState = iota
	StateDisabled
	StateEditable
	StateSelected
)

func (s ElementState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEditable:
		return "editable"
	case StateSelected:
		return "selected"
	default:
		return "visible"
	}
}

// buildStateExpr reads one boolean element state. A missing element is still
// a notfound outcome; predicates never report false for an element that is
// not there.
func buildStateExpr(chain []Selector, sel Selector, card Cardinality, state ElementState) string {
	var pred string
	switch state {
	case StateDisabled:
		pred = "  const flag = el.disabled === true;\n"
	case StateEditable:
		pred = `  const tag = el.tagName;
  let flag = false;
  if (tag === "INPUT" || tag === "TEXTAREA") {
    flag = !el.disabled && !el.readOnly;
  } else {
    flag = el.isContentEditable === true;
  }
`
	case StateSelected:
		pred = `  const tag = el.tagName;
  let flag = false;
  if (tag === "INPUT" && (el.type === "checkbox" || el.type === "radio")) {
    flag = el.checked === true;
  } else if (tag === "OPTION") {
    flag = el.selected === true;
  } else if (tag === "SELECT") {
    flag = el.selectedIndex >= 0;
  }
`
	default:
		pred = `  const rect = el.getBoundingClientRect();
  const style = (el.ownerDocument.defaultView || window).getComputedStyle(el);
  const flag = rect.width > 0 && rect.height > 0 &&
    style.display !== "none" && style.visibility !== "hidden" && style.opacity !== "0";
`
	}
	return assemble(chain, sel, card, pred+"  return {status: \"found\", count: nodes.length, flag: flag};\n")
}

// buildCheckProbeExpr inspects a checkbox or radio before check/uncheck.
// When the control already holds the requested state the outcome says so
// and the executor performs no pointer action; otherwise the outcome
// carries the click point for a real click, so page-installed listeners
// observe a genuine interaction rather than a property write.
func buildCheckProbeExpr(chain []Selector, sel Selector, card Cardinality, want bool) string {
	raw := jsonEncode(sel.Raw)
	body := fmt.Sprintf(`  if (el.tagName !== "INPUT" || (el.type !== "checkbox" && el.type !== "radio")) {
    return {status: "notcheckable", selector: %s, count: nodes.length, tag: el.tagName, type: el.type || ""};
  }
  if (el.checked === %t) {
    return {status: "found", count: nodes.length, match: true};
  }
`, raw, want)
	body += measureLines
	body += "  return {status: \"found\", count: nodes.length, match: false, x: x, y: y, width: rect.width, height: rect.height, visible: visible};\n"
	return assemble(chain, sel, card, body)
}

// SelectOption identifies one option inside a <select> control by visible
// label, by value attribute, or by position.
type SelectOption struct {
	Mode  string `json:"mode"`
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
	Index int    `json:"index,omitempty"`
	Desc  string `json:"desc"`
}

// OptionLabel matches an option whose visible label, after trimming, equals
// the given text exactly.
func OptionLabel(label string) SelectOption {
	l := strings.TrimSpace(label)
	return SelectOption{Mode: "label", Label: l, Desc: fmt.Sprintf("label=%q", l)}
}

// OptionValue matches an option by its value attribute.
func OptionValue(value string) SelectOption {
	return SelectOption{Mode: "value", Value: value, Desc: fmt.Sprintf("value=%q", value)}
}

// OptionIndex matches an option by its zero-based position.
func OptionIndex(index int) SelectOption {
	return SelectOption{Mode: "index", Index: index, Desc: fmt.Sprintf("index=%d", index)}
}

// buildSelectExpr mutates a <select>. All existing selections are cleared
// first, then every requested option is applied, then a single change event
// fires. An option spec that matches nothing aborts before any mutation.
func buildSelectExpr(chain []Selector, sel Selector, card Cardinality, options []SelectOption) string {
	raw := jsonEncode(sel.Raw)
	body := fmt.Sprintf(`  if (el.tagName !== "SELECT") {
    return {status: "notselectable", selector: %s, count: nodes.length, tag: el.tagName};
  }
  const specs = %s;
  const opts = Array.from(el.options);
  const picks = [];
  for (const spec of specs) {
    let hit = -1;
    if (spec.mode === "label") {
      for (let i = 0; i < opts.length; i++) {
        if ((opts[i].label || opts[i].text || "").trim() === spec.label) { hit = i; break; }
      }
    } else if (spec.mode === "value") {
      for (let i = 0; i < opts.length; i++) {
        if (opts[i].value === spec.value) { hit = i; break; }
      }
    } else if (spec.index >= 0 && spec.index < opts.length) {
      hit = spec.index;
    }
    if (hit < 0) {
      return {status: "optionmiss", selector: %s, count: nodes.length, option: spec.desc};
    }
    if (picks.indexOf(hit) < 0) picks.push(hit);
  }
  for (const o of opts) o.selected = false;
  for (const i of picks) opts[i].selected = true;
  el.dispatchEvent(new Event("change", {bubbles: true}));
  return {status: "found", count: nodes.length, applied: picks.length};
`, raw, jsonEncode(options), raw)
	return assemble(chain, sel, card, body)
}

// buildSetValueExpr writes a control's value directly and fires the input
// and change events a real edit would produce. Used by Fill, which replaces
// content instead of appending keystrokes.
func buildSetValueExpr(chain []Selector, sel Selector, card Cardinality, value string) string {
	body := fmt.Sprintf(`  const tag = el.tagName;
  if (tag === "INPUT" || tag === "TEXTAREA") {
    el.focus();
    el.value = %s;
  } else if (el.isContentEditable) {
    el.focus();
    el.textContent = %s;
  } else {
    return {status: "noteditable", selector: %s, count: nodes.length, tag: tag};
  }
  el.dispatchEvent(new Event("input", {bubbles: true}));
  el.dispatchEvent(new Event("change", {bubbles: true}));
  return {status: "found", count: nodes.length};
`, jsonEncode(value), jsonEncode(value), jsonEncode(sel.Raw))
	return assemble(chain, sel, card, body)
}

// buildCountExpr counts matches without applying cardinality. Wait loops
// poll it for element presence; an inaccessible intermediate frame reports
// notready instead of aborting, so the wait can keep polling while frames
// finish loading.
func buildCountExpr(chain []Selector, sel Selector) string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	b.WriteString(documentFragment(chain, true))
	b.WriteString(gatherFragment(sel))
	b.WriteString("  return {status: \"found\", count: nodes.length};\n")
	b.WriteString("})()")
	return b.String()
}
