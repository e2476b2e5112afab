// Package schemas defines the result vocabulary shared by the runner,
// the report renderers and the results store. Everything here is plain
// data with stable json tags.
package schemas

import "time"

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepPassed  StepStatus = "PASSED"
	StepFailed  StepStatus = "FAILED"
	StepSkipped StepStatus = "SKIPPED"
)

// SuiteStatus is the aggregate outcome of one suite. Skipped means the
// run was canceled before the suite started, usually by fail-fast.
type SuiteStatus string

const (
	SuitePassed  SuiteStatus = "PASSED"
	SuiteFailed  SuiteStatus = "FAILED"
	SuiteSkipped SuiteStatus = "SKIPPED"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	// Index is the 1-based position of the step within its suite.
	Index int `json:"index"`
	// Line is the source line of the step in the suite file.
	Line int `json:"line"`
	// Verb is the step's leading word, e.g. "click" or "wait-url".
	Verb string `json:"verb"`
	// Text is the raw step line as written.
	Text       string        `json:"text"`
	Status     StepStatus    `json:"status"`
	Error      string        `json:"error,omitempty"`
	Screenshot string        `json:"screenshot,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// DurationSeconds returns the step duration in seconds, the unit report
// formats want.
func (r StepResult) DurationSeconds() float64 {
	return r.Duration.Seconds()
}

// SuiteResult is the outcome of one suite file.
type SuiteResult struct {
	// Name is the suite's display name, derived from the file name.
	Name      string        `json:"name"`
	Path      string        `json:"path"`
	Status    SuiteStatus   `json:"status"`
	Steps     []StepResult  `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	// Error is set for suite-level failures that happened outside any
	// step, e.g. the suite file failed to parse.
	Error string `json:"error,omitempty"`
}

// DurationSeconds returns the suite duration in seconds.
func (s SuiteResult) DurationSeconds() float64 {
	return s.Duration.Seconds()
}

// Counts tallies this suite's steps by status.
func (s SuiteResult) Counts() (passed, failed, skipped int) {
	for _, step := range s.Steps {
		switch step.Status {
		case StepPassed:
			passed++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// RunTotals aggregates step outcomes across a whole run.
type RunTotals struct {
	Suites  int `json:"suites"`
	Steps   int `json:"steps"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RunManifest is the complete record of one run.
type RunManifest struct {
	RunID     string        `json:"run_id"`
	Title     string        `json:"title"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Suites    []SuiteResult `json:"suites"`
	Totals    RunTotals     `json:"totals"`
}

// Recount rebuilds Totals from the suite results.
func (m *RunManifest) Recount() {
	totals := RunTotals{Suites: len(m.Suites)}
	for _, suite := range m.Suites {
		passed, failed, skipped := suite.Counts()
		totals.Steps += len(suite.Steps)
		totals.Passed += passed
		totals.Failed += failed
		totals.Skipped += skipped
	}
	m.Totals = totals
}

// Failed reports whether any suite in the run failed. A suite-level
// error counts as a failure even when no step ran.
func (m *RunManifest) Failed() bool {
	for _, suite := range m.Suites {
		if suite.Status == SuiteFailed {
			return true
		}
	}
	return false
}

// StreamEventType tags one line of the live JSONL result stream.
type StreamEventType string

const (
	EventRunStarted   StreamEventType = "RUN_STARTED"
	EventSuiteStarted StreamEventType = "SUITE_STARTED"
	EventStepResult   StreamEventType = "STEP_RESULT"
	EventSuiteResult  StreamEventType = "SUITE_RESULT"
	EventRunFinished  StreamEventType = "RUN_FINISHED"
)

// StreamEvent is one line of the JSONL stream the runner appends to as
// results land. `report --follow` consumes it live.
type StreamEvent struct {
	Type  StreamEventType `json:"type"`
	RunID string          `json:"run_id,omitempty"`
	// Suite names the suite the event belongs to, empty for run-level
	// events.
	Suite string `json:"suite,omitempty"`
	// Status carries the suite or run outcome on *_RESULT / *_FINISHED
	// events.
	Status string `json:"status,omitempty"`
	// Step is set on STEP_RESULT events.
	Step      *StepResult `json:"step,omitempty"`
	Totals    *RunTotals  `json:"totals,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
