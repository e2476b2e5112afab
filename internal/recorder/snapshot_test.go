package recorder_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/waldo-cli/internal/recorder"
)

func TestSanitizeSnapshotStripsActiveContent(t *testing.T) {
	raw := `<html><head><title>Cart</title><script>alert(1)</script></head>
<body onload="boom()">
<div onclick="steal()">Your cart</div>
<a href="/checkout">Checkout</a>
<a href="javascript:void(0)" id="fake">Fake</a>
<a href=" JavaScript:alert(2)">Sneaky</a>
<iframe src="https://evil.test/"></iframe>
<object data="movie.swf"></object>
<noscript>enable js</noscript>
<img src="/cart.png" onerror="x()" alt="cart">
</body></html>`

	out, err := recorder.SanitizeSnapshot(raw, "")
	require.NoError(t, err)
	s := string(out)

	assert.NotContains(t, s, "<script")
	assert.NotContains(t, s, "alert(1)")
	assert.NotContains(t, s, "<iframe")
	assert.NotContains(t, s, "<object")
	assert.NotContains(t, s, "<noscript")
	assert.NotContains(t, s, "onload")
	assert.NotContains(t, s, "onclick")
	assert.NotContains(t, s, "onerror")
	assert.NotContains(t, strings.ToLower(s), "javascript:")

	// The page itself survives.
	assert.Contains(t, s, "<title>Cart</title>")
	assert.Contains(t, s, "Your cart")
	assert.Contains(t, s, `<a href="/checkout">Checkout</a>`)
	assert.Contains(t, s, `<img src="/cart.png"`)
	assert.Contains(t, s, `alt="cart"`)
	// Neutered links keep their text and other attributes.
	assert.Contains(t, s, `<a id="fake">Fake</a>`)
	assert.Contains(t, s, "Sneaky")
}

func TestSanitizeSnapshotInsertsBase(t *testing.T) {
	out, err := recorder.SanitizeSnapshot(
		`<html><head><title>Cart</title></head><body><img src="cart.png"></body></html>`,
		"https://shop.test/cart")
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `<base href="https://shop.test/cart"`)
	// The base must precede anything that resolves a url.
	assert.Less(t, strings.Index(s, "<base"), strings.Index(s, "<title"))
}

func TestSanitizeSnapshotKeepsExistingBase(t *testing.T) {
	out, err := recorder.SanitizeSnapshot(
		`<html><head><base href="https://cdn.test/assets/"><title>x</title></head><body></body></html>`,
		"https://shop.test/")
	require.NoError(t, err)
	s := string(out)

	assert.Equal(t, 1, strings.Count(s, "<base"))
	assert.Contains(t, s, `href="https://cdn.test/assets/"`)
	assert.NotContains(t, s, "shop.test")
}

func TestSanitizeSnapshotFragments(t *testing.T) {
	// Pages arrive as outerHTML, but the parser tolerates anything and
	// fills in the implied document shell.
	out, err := recorder.SanitizeSnapshot(`<div><p>unclosed`, "https://shop.test/")
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `<head><base href="https://shop.test/"`)
	assert.Contains(t, s, "unclosed")

	out, err = recorder.SanitizeSnapshot("", "")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<base")
}
