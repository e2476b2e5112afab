package report

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestJUnitReport(t *testing.T) {
	var buf captureBuffer
	r := NewJUnitRenderer(&buf, zaptest.NewLogger(t))
	require.NoError(t, r.Render(sampleManifest()))
	assert.True(t, buf.closed)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))

	root := doc.SelectElement("testsuites")
	require.NotNil(t, root)
	assert.Equal(t, "Waldo Run Report", root.SelectAttrValue("name", ""))
	assert.Equal(t, "6", root.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", root.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", root.SelectAttrValue("skipped", ""))
	assert.Equal(t, "1", root.SelectAttrValue("errors", ""))
	assert.Equal(t, "3.200", root.SelectAttrValue("time", ""))

	suites := root.SelectElements("testsuite")
	require.Len(t, suites, 3)

	login := suites[0]
	assert.Equal(t, "login", login.SelectAttrValue("name", ""))
	assert.Equal(t, "2", login.SelectAttrValue("tests", ""))
	assert.Equal(t, "0", login.SelectAttrValue("failures", ""))
	assert.Equal(t, "2026-03-14T09:26:53", login.SelectAttrValue("timestamp", ""))
	loginCases := login.SelectElements("testcase")
	require.Len(t, loginCases, 2)
	assert.Equal(t, "01 goto https://shop.test/login", loginCases[0].SelectAttrValue("name", ""))
	assert.Equal(t, "0.800", loginCases[0].SelectAttrValue("time", ""))
	assert.Nil(t, loginCases[0].SelectElement("failure"))
	assert.Nil(t, loginCases[0].SelectElement("skipped"))

	checkout := suites[1]
	assert.Equal(t, "3", checkout.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", checkout.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", checkout.SelectAttrValue("skipped", ""))
	cases := checkout.SelectElements("testcase")
	require.Len(t, cases, 3)

	failed := cases[1]
	assert.Equal(t, "checkout", failed.SelectAttrValue("classname", ""))
	assert.Equal(t, "02 click #buy<now>", failed.SelectAttrValue("name", ""))
	failure := failed.SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, `no element matches "#buy<now>"`, failure.SelectAttrValue("message", ""))
	assert.Contains(t, failure.Text(), "line 2")

	require.NotNil(t, cases[2].SelectElement("skipped"))

	busted := suites[2]
	assert.Equal(t, "1", busted.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", busted.SelectAttrValue("errors", ""))
	bustedCases := busted.SelectElements("testcase")
	require.Len(t, bustedCases, 1)
	assert.Equal(t, "(suite setup)", bustedCases[0].SelectAttrValue("name", ""))
	suiteErr := bustedCases[0].SelectElement("error")
	require.NotNil(t, suiteErr)
	assert.Equal(t, "busted:1: goto needs a url", suiteErr.SelectAttrValue("message", ""))
}
