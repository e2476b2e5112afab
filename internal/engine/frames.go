package engine

import (
	"fmt"
	"strings"
)

// documentFragment emits the working-document acquisition step of a script.
// An empty chain binds doc to the top-level document. Each chain entry must
// resolve to exactly one iframe exposing an accessible same-origin document;
// that document becomes the root for the next entry. Selectors are
// re-resolved on every traversal, so a chain stays valid across re-renders
// as long as each selector still matches exactly one iframe.
//
// In tolerant mode an unreachable step reports notready instead of
// framedenied. Wait loops use it to keep polling while nested frames are
// still loading.
func documentFragment(chain []Selector, tolerant bool) string {
	if len(chain) == 0 {
		return "  const doc = document;\n"
	}

	var b strings.Builder
	b.WriteString("  let doc = document;\n")
	for depth, fs := range chain {
		raw := jsonEncode(fs.Raw)
		var fail, denied string
		if tolerant {
			fail = "return {status: \"notready\"};"
			denied = fail
		} else {
			fail = fmt.Sprintf("return {status: \"framedenied\", selector: %s, count: frames.length, depth: %d};", raw, depth)
			denied = fmt.Sprintf("return {status: \"framedenied\", selector: %s, count: 1, depth: %d};", raw, depth)
		}

		b.WriteString("  {\n")
		if fs.Kind == KindXPath {
			fmt.Fprintf(&b, `    const snap = doc.evaluate(%s, doc, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    const frames = [];
    for (let i = 0; i < snap.snapshotLength; i++) frames.push(snap.snapshotItem(i));
`, jsonEncode(fs.Canonical))
		} else {
			fmt.Fprintf(&b, "    const frames = Array.from(doc.querySelectorAll(%s));\n", jsonEncode(fs.Canonical))
		}
		fmt.Fprintf(&b, `    if (frames.length !== 1) %s
    let child = null;
    try { child = frames[0].contentDocument; } catch (e) { child = null; }
    if (!child) %s
    doc = child;
  }
`, fail, denied)
	}
	return b.String()
}

// resolveChain canonicalizes a list of author-supplied iframe selectors.
func resolveChain(selectors []string) []Selector {
	if len(selectors) == 0 {
		return nil
	}
	chain := make([]Selector, len(selectors))
	for i, s := range selectors {
		chain[i] = ResolveSelector(s)
	}
	return chain
}
