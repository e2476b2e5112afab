package report

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// Console renders stream events as terminal lines. It implements
// io.Writer over the JSONL encoding, so it can sit directly behind the
// runner's stream mirror; partial writes are buffered until a full
// line arrives.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	buf bytes.Buffer
}

// NewConsole wraps the terminal writer.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(p)
	for {
		line, err := c.buf.ReadBytes('\n')
		if err != nil {
			// Unterminated tail, keep it for the next write.
			c.buf.Write(line)
			return len(p), nil
		}
		c.printLine(line)
	}
}

func (c *Console) printLine(line []byte) {
	var ev schemas.StreamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		// Not an event line; pass it through untouched.
		c.out.Write(line)
		return
	}
	if s := formatEvent(ev); s != "" {
		io.WriteString(c.out, s)
	}
}

// formatEvent renders one stream event for humans. Unknown event types
// produce nothing.
func formatEvent(ev schemas.StreamEvent) string {
	switch ev.Type {
	case schemas.EventRunStarted:
		return fmt.Sprintf("run %s started\n", ev.RunID)
	case schemas.EventSuiteStarted:
		return fmt.Sprintf("--- %s\n", ev.Suite)
	case schemas.EventStepResult:
		if ev.Step == nil {
			return ""
		}
		line := fmt.Sprintf("%s line %-3d %s\n", statusMark(ev.Step.Status), ev.Step.Line, ev.Step.Text)
		if ev.Step.Error != "" {
			line += fmt.Sprintf("           %s\n", ev.Step.Error)
		}
		return line
	case schemas.EventSuiteResult:
		return fmt.Sprintf("--- %s: %s\n", ev.Suite, ev.Status)
	case schemas.EventRunFinished:
		if ev.Totals != nil {
			return fmt.Sprintf("run finished: %s (%d passed, %d failed, %d skipped)\n",
				ev.Status, ev.Totals.Passed, ev.Totals.Failed, ev.Totals.Skipped)
		}
		return fmt.Sprintf("run finished: %s\n", ev.Status)
	}
	return ""
}

func statusMark(s schemas.StepStatus) string {
	switch s {
	case schemas.StepPassed:
		return "  PASS"
	case schemas.StepFailed:
		return "  FAIL"
	default:
		return "  SKIP"
	}
}
