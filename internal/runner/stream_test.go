package runner_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
	"github.com/xkilldash9x/waldo-cli/internal/runner"
)

func TestStreamWriterEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := runner.NewStreamWriter(&buf, zaptest.NewLogger(t))

	s.Emit(schemas.StreamEvent{Type: schemas.EventRunStarted, RunID: "r1"})
	s.Emit(schemas.StreamEvent{Type: schemas.EventStepResult, RunID: "r1", Suite: "login", Status: "PASSED"})
	s.Emit(schemas.StreamEvent{Type: schemas.EventRunFinished, RunID: "r1", Status: "PASSED"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var first schemas.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, schemas.EventRunStarted, first.Type)
	assert.Equal(t, "r1", first.RunID)
	assert.False(t, first.Timestamp.IsZero(), "emission time should be stamped")

	var mid schemas.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &mid))
	assert.Equal(t, "login", mid.Suite)
	assert.Equal(t, "PASSED", mid.Status)

	var last schemas.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, schemas.EventRunFinished, last.Type)
}

func TestStreamWriterNilSafety(t *testing.T) {
	var s *runner.StreamWriter
	assert.NotPanics(t, func() {
		s.Emit(schemas.StreamEvent{Type: schemas.EventRunStarted})
	})

	assert.NotPanics(t, func() {
		runner.NewStreamWriter(nil, nil).Emit(schemas.StreamEvent{Type: schemas.EventRunStarted})
	})
}

func TestStreamWriterConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	s := runner.NewStreamWriter(&buf, zaptest.NewLogger(t))

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Emit(schemas.StreamEvent{Type: schemas.EventStepResult, RunID: "r1"})
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, workers*perWorker, "lines must never interleave")
	for _, line := range lines {
		var ev schemas.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "line %q", line)
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("pipe gone") }

func TestStreamWriterSwallowsWriteErrors(t *testing.T) {
	s := runner.NewStreamWriter(brokenWriter{}, zaptest.NewLogger(t))
	assert.NotPanics(t, func() {
		s.Emit(schemas.StreamEvent{Type: schemas.EventRunStarted})
	})
}
