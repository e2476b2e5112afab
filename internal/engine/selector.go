package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// SelectorKind distinguishes the two query languages an element selector can
// be written in. CSS selectors are resolved with querySelectorAll, XPath
// selectors with document.evaluate.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
)

func (k SelectorKind) String() string {
	if k == KindXPath {
		return "xpath"
	}
	return "css"
}

// Selector is a resolved element query. Raw preserves the author's original
// string for error reporting; Canonical is what actually gets embedded into
// page-side scripts.
type Selector struct {
	Raw       string
	Canonical string
	Kind      SelectorKind
}

// shorthandRe matches the attr="value" shorthand, e.g. name="email" or
// data-testid="submit". The value may be empty.
var shorthandRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_-]*)\s*=\s*"([^"]*)"$`)

// ResolveSelector normalizes an author-supplied selector string into its
// canonical form. The mapping is a pure function of the input:
//
//	name="v"     -> [name="v"]
//	id="v"       -> [id="v"]
//	class="a b"  -> .a.b (one class per whitespace-separated token)
//	attr="v"     -> [attr="v"]
//
// Strings whose trimmed form starts with "/", "./" or "(" are classified as
// XPath and passed through unchanged. Anything else is assumed to already be
// a CSS selector and is also passed through unchanged.
func ResolveSelector(raw string) Selector {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "./") || strings.HasPrefix(trimmed, "(") {
		return Selector{Raw: raw, Canonical: raw, Kind: KindXPath}
	}

	m := shorthandRe.FindStringSubmatch(trimmed)
	if m == nil {
		return Selector{Raw: raw, Canonical: raw, Kind: KindCSS}
	}

	attr, value := m[1], m[2]
	if attr == "class" {
		var b strings.Builder
		for _, token := range strings.Fields(value) {
			b.WriteByte('.')
			b.WriteString(cssEscapeIdent(token))
		}
		// class="" selects nothing meaningful; fall back to the attribute form.
		if b.Len() > 0 {
			return Selector{Raw: raw, Canonical: b.String(), Kind: KindCSS}
		}
	}
	return Selector{Raw: raw, Canonical: fmt.Sprintf(`[%s="%s"]`, attr, value), Kind: KindCSS}
}

// cssEscapeIdent escapes a single class token so it is safe inside a CSS
// class selector. Mirrors the serialization rules of CSS.escape for the
// subset of inputs a test author will realistically write.
func cssEscapeIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune('�')
		case r >= '0' && r <= '9' && i == 0:
			fmt.Fprintf(&b, `\3%c `, r)
		case r == '-' && i == 0 && len(s) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\%x `, r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Cardinality selects which element to act on when a selector matches more
// than one node. The zero value is strict mode: exactly one match required.
type Cardinality struct {
	kind cardKind
	n    int
}

type cardKind int

const (
	cardStrict cardKind = iota
	cardFirst
	cardLast
	cardNth
)

// CardStrict requires the selector to match exactly one element.
func CardStrict() Cardinality { return Cardinality{kind: cardStrict} }

// CardFirst picks the first match regardless of how many there are.
func CardFirst() Cardinality { return Cardinality{kind: cardFirst} }

// CardLast picks the last match.
func CardLast() Cardinality { return Cardinality{kind: cardLast} }

// CardNth picks the zero-based nth match. Resolution fails with an
// out-of-range outcome when n does not satisfy 0 <= n < count.
func CardNth(n int) Cardinality { return Cardinality{kind: cardNth, n: n} }

func (c Cardinality) String() string {
	switch c.kind {
	case cardFirst:
		return "first"
	case cardLast:
		return "last"
	case cardNth:
		return fmt.Sprintf("nth(%d)", c.n)
	default:
		return "strict"
	}
}
