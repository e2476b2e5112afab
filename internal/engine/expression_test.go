package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatherFragment(t *testing.T) {
	t.Run("css", func(t *testing.T) {
		frag := gatherFragment(ResolveSelector(`name="email"`))
		assert.Contains(t, frag, `doc.querySelectorAll("[name=\"email\"]")`)
		assert.NotContains(t, frag, "doc.evaluate")
	})

	t.Run("xpath", func(t *testing.T) {
		frag := gatherFragment(ResolveSelector(`//button[text()="Go"]`))
		assert.Contains(t, frag, "doc.evaluate(")
		assert.Contains(t, frag, "XPathResult.ORDERED_NODE_SNAPSHOT_TYPE",
			"xpath gathering must preserve document order")
		assert.NotContains(t, frag, "querySelectorAll")
	})
}

func TestPickFragment(t *testing.T) {
	sel := ResolveSelector("button")

	t.Run("strict rejects multiple matches", func(t *testing.T) {
		frag := pickFragment(sel, CardStrict())
		assert.Contains(t, frag, `"notfound"`)
		assert.Contains(t, frag, `nodes.length > 1`)
		assert.Contains(t, frag, `"ambiguous"`)
		assert.Contains(t, frag, "nodes[0]")
	})

	t.Run("first tolerates multiple matches", func(t *testing.T) {
		frag := pickFragment(sel, CardFirst())
		assert.Contains(t, frag, `"notfound"`)
		assert.NotContains(t, frag, `"ambiguous"`)
		assert.Contains(t, frag, "nodes[0]")
	})

	t.Run("last picks the trailing node", func(t *testing.T) {
		frag := pickFragment(sel, CardLast())
		assert.Contains(t, frag, "nodes[nodes.length - 1]")
	})

	t.Run("nth reports outofrange even for zero matches", func(t *testing.T) {
		frag := pickFragment(sel, CardNth(2))
		assert.Contains(t, frag, `"outofrange"`)
		assert.Contains(t, frag, "nodes[2]")
		// An empty match list is an index violation, not a missing element.
		assert.NotContains(t, frag, `"notfound"`)
	})
}

func TestBuildMeasureExpr(t *testing.T) {
	expr := buildMeasureExpr(nil, ResolveSelector("#go"), CardStrict())

	assert.True(t, strings.HasPrefix(expr, "(() => {"), "script must be a self-contained IIFE")
	assert.True(t, strings.HasSuffix(expr, "})()"))
	assert.Contains(t, expr, "scrollIntoView")
	assert.Contains(t, expr, "getBoundingClientRect")
	assert.Contains(t, expr, "win.frameElement",
		"coordinates must be translated through ancestor frame offsets")
	assert.Contains(t, expr, `"found"`)
}

func TestBuildAttributeExpr(t *testing.T) {
	t.Run("value reads live control state", func(t *testing.T) {
		expr := buildAttributeExpr(nil, ResolveSelector("input"), CardStrict(), "value")
		assert.Contains(t, expr, "el.value")
		assert.Contains(t, expr, `tag === "TEXTAREA"`)
	})

	t.Run("other attributes use getAttribute", func(t *testing.T) {
		expr := buildAttributeExpr(nil, ResolveSelector("a"), CardStrict(), "href")
		assert.Contains(t, expr, `getAttribute`)
		assert.Contains(t, expr, `"href"`)
		assert.Contains(t, expr, "present", "caller must be able to tell absent from empty")
	})
}

func TestBuildStateExpr(t *testing.T) {
	sel := ResolveSelector("#el")
	cases := []struct {
		state ElementState
		want  string
	}{
		{StateVisible, "getComputedStyle"},
		{StateDisabled, "el.disabled === true"},
		{StateEditable, "el.readOnly"},
		{StateSelected, "el.selectedIndex"},
	}
	for _, tc := range cases {
		t.Run(tc.state.String(), func(t *testing.T) {
			expr := buildStateExpr(nil, sel, CardStrict(), tc.state)
			assert.Contains(t, expr, tc.want)
			assert.Contains(t, expr, `"notfound"`,
				"missing elements must surface as notfound, never as a false predicate")
		})
	}
}

func TestBuildCheckProbeExpr(t *testing.T) {
	expr := buildCheckProbeExpr(nil, ResolveSelector(`name="agree"`), CardStrict(), true)

	assert.Contains(t, expr, `"notcheckable"`)
	assert.Contains(t, expr, `el.checked === true`)
	assert.Contains(t, expr, "match: true")
	assert.Contains(t, expr, "match: false")
	assert.Contains(t, expr, "scrollIntoView",
		"a state change needs a click point, so the probe measures")

	unchecked := buildCheckProbeExpr(nil, ResolveSelector(`name="agree"`), CardStrict(), false)
	assert.Contains(t, unchecked, `el.checked === false`)
}

func TestBuildSelectExpr(t *testing.T) {
	opts := []SelectOption{OptionLabel(" Two "), OptionValue("v3"), OptionIndex(0)}
	expr := buildSelectExpr(nil, ResolveSelector("#pick"), CardStrict(), opts)

	assert.Contains(t, expr, `"notselectable"`)
	assert.Contains(t, expr, `"optionmiss"`)
	assert.Contains(t, expr, `"label":"Two"`, "labels are trimmed before matching")
	assert.Contains(t, expr, `"value":"v3"`)
	assert.Contains(t, expr, "o.selected = false", "existing selections are cleared first")
	assert.Contains(t, expr, `new Event("change", {bubbles: true})`)
	assert.Equal(t, 1, strings.Count(expr, `dispatchEvent(new Event("change"`),
		"exactly one change event regardless of how many options were applied")
}

func TestSelectOptionDescriptions(t *testing.T) {
	assert.Equal(t, `label="Two"`, OptionLabel("Two").Desc)
	assert.Equal(t, `label="Two"`, OptionLabel("  Two  ").Desc)
	assert.Equal(t, `value="v3"`, OptionValue("v3").Desc)
	assert.Equal(t, "index=4", OptionIndex(4).Desc)
}

func TestBuildSetValueExpr(t *testing.T) {
	expr := buildSetValueExpr(nil, ResolveSelector("#name"), CardStrict(), `He said "hi"`)

	assert.Contains(t, expr, `"He said \"hi\""`, "values must be escaped for embedding")
	assert.Contains(t, expr, `"noteditable"`)
	assert.Contains(t, expr, "isContentEditable")
	assert.Contains(t, expr, `new Event("input", {bubbles: true})`)
	assert.Contains(t, expr, `new Event("change", {bubbles: true})`)
}

func TestBuildCountExpr(t *testing.T) {
	expr := buildCountExpr(nil, ResolveSelector("li.item"))

	assert.Contains(t, expr, "nodes.length")
	assert.NotContains(t, expr, `"ambiguous"`, "counting applies no cardinality")
	assert.NotContains(t, expr, `"notfound"`, "zero matches is a countable result")
}

func TestDocumentFragment(t *testing.T) {
	t.Run("empty chain binds the top document", func(t *testing.T) {
		frag := documentFragment(nil, false)
		assert.Equal(t, "  const doc = document;\n", frag)
	})

	t.Run("strict chain denies on miscount and opacity", func(t *testing.T) {
		chain := resolveChain([]string{"#outer", "#inner"})
		frag := documentFragment(chain, false)
		assert.Contains(t, frag, "frames.length !== 1")
		assert.Contains(t, frag, `"framedenied"`)
		assert.Contains(t, frag, "depth: 0")
		assert.Contains(t, frag, "depth: 1")
		assert.Contains(t, frag, "contentDocument")
		assert.Contains(t, frag, "try {", "cross-origin access throws and must be caught")
	})

	t.Run("tolerant chain reports notready", func(t *testing.T) {
		chain := resolveChain([]string{"#outer"})
		frag := documentFragment(chain, true)
		assert.Contains(t, frag, `"notready"`)
		assert.NotContains(t, frag, `"framedenied"`)
	})

	t.Run("xpath frame selectors use evaluate", func(t *testing.T) {
		chain := resolveChain([]string{`//iframe[@title="panel"]`})
		frag := documentFragment(chain, false)
		assert.Contains(t, frag, "doc.evaluate(")
	})
}

func TestResolveChain(t *testing.T) {
	require.Nil(t, resolveChain(nil))
	require.Nil(t, resolveChain([]string{}))

	chain := resolveChain([]string{`name="panel"`, "//iframe"})
	require.Len(t, chain, 2)
	assert.Equal(t, `[name="panel"]`, chain[0].Canonical)
	assert.Equal(t, KindXPath, chain[1].Kind)
}
