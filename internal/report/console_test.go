package report

import (
	"bytes"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

func evLine(t *testing.T, ev schemas.StreamEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return append(data, '\n')
}

func TestConsoleRendersEvents(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	events := []schemas.StreamEvent{
		{Type: schemas.EventRunStarted, RunID: "r-9"},
		{Type: schemas.EventSuiteStarted, Suite: "login"},
		{Type: schemas.EventStepResult, Suite: "login", Step: &schemas.StepResult{
			Line: 1, Text: "goto https://a.test", Status: schemas.StepPassed,
		}},
		{Type: schemas.EventStepResult, Suite: "login", Step: &schemas.StepResult{
			Line: 2, Text: "click #x", Status: schemas.StepFailed, Error: "boom",
		}},
		{Type: schemas.EventSuiteResult, Suite: "login", Status: "FAILED"},
		{Type: schemas.EventRunFinished, Status: "FAILED", Totals: &schemas.RunTotals{
			Suites: 1, Steps: 2, Passed: 1, Failed: 1,
		}},
	}
	for _, ev := range events {
		_, err := c.Write(evLine(t, ev))
		require.NoError(t, err)
	}

	got := out.String()
	assert.Contains(t, got, "run r-9 started")
	assert.Contains(t, got, "--- login\n")
	assert.Contains(t, got, "PASS line 1")
	assert.Contains(t, got, "goto https://a.test")
	assert.Contains(t, got, "FAIL line 2")
	assert.Contains(t, got, "boom")
	assert.Contains(t, got, "--- login: FAILED")
	assert.Contains(t, got, "run finished: FAILED (1 passed, 1 failed, 0 skipped)")
}

func TestConsoleBuffersPartialWrites(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	line := evLine(t, schemas.StreamEvent{Type: schemas.EventRunStarted, RunID: "r-7"})
	half := len(line) / 2

	_, err := c.Write(line[:half])
	require.NoError(t, err)
	assert.Empty(t, out.String(), "nothing should print before the newline")

	_, err = c.Write(line[half:])
	require.NoError(t, err)
	assert.Equal(t, "run r-7 started\n", out.String())
}

func TestConsolePassesThroughNonEvents(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	_, err := c.Write([]byte("plain log line\n"))
	require.NoError(t, err)
	assert.Equal(t, "plain log line\n", out.String())
}

func TestConsoleIgnoresUnknownEventTypes(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	_, err := c.Write([]byte(`{"type":"SOMETHING_NEW"}` + "\n"))
	require.NoError(t, err)
	assert.Empty(t, out.String())
}
