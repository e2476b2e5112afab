package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// JUnitRenderer writes the manifest in the JUnit XML dialect most CI
// systems ingest. Suite-level failures that happened outside any step,
// like an unparseable file, surface as an <error> on a synthetic
// testcase so they are never silently dropped.
type JUnitRenderer struct {
	writer io.WriteCloser
	logger *zap.Logger
}

// NewJUnitRenderer creates a JUnit renderer that takes ownership of the
// writer.
func NewJUnitRenderer(writer io.WriteCloser, log *zap.Logger) *JUnitRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &JUnitRenderer{writer: writer, logger: log.Named("junit_report")}
}

// Render builds the XML document and closes the output.
func (r *JUnitRenderer) Render(m *schemas.RunManifest) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", m.Title)

	var totalTests, totalFailures, totalSkipped, totalErrors int
	for _, suite := range m.Suites {
		tests, failures, skipped, errors := addSuite(root, suite)
		totalTests += tests
		totalFailures += failures
		totalSkipped += skipped
		totalErrors += errors
	}
	root.CreateAttr("tests", strconv.Itoa(totalTests))
	root.CreateAttr("failures", strconv.Itoa(totalFailures))
	root.CreateAttr("skipped", strconv.Itoa(totalSkipped))
	root.CreateAttr("errors", strconv.Itoa(totalErrors))
	root.CreateAttr("time", formatSeconds(m.Duration.Seconds()))

	doc.Indent(2)
	_, writeErr := doc.WriteTo(r.writer)
	closeErr := r.writer.Close()

	if writeErr != nil {
		r.logger.Error("failed to write junit report", zap.Error(writeErr))
		return fmt.Errorf("writing junit report: %w", writeErr)
	}
	if closeErr != nil {
		r.logger.Error("failed to close report output", zap.Error(closeErr))
		return fmt.Errorf("closing report output: %w", closeErr)
	}

	r.logger.Info("wrote junit report",
		zap.String("run_id", m.RunID),
		zap.Int("tests", totalTests),
		zap.Int("failures", totalFailures))
	return nil
}

func addSuite(root *etree.Element, suite schemas.SuiteResult) (tests, failures, skipped, errors int) {
	el := root.CreateElement("testsuite")
	el.CreateAttr("name", suite.Name)
	el.CreateAttr("timestamp", suite.StartedAt.Format("2006-01-02T15:04:05"))
	el.CreateAttr("time", formatSeconds(suite.DurationSeconds()))

	for _, step := range suite.Steps {
		tc := el.CreateElement("testcase")
		tc.CreateAttr("classname", suite.Name)
		tc.CreateAttr("name", fmt.Sprintf("%02d %s", step.Index, step.Text))
		tc.CreateAttr("time", formatSeconds(step.DurationSeconds()))
		tests++

		switch step.Status {
		case schemas.StepFailed:
			failures++
			f := tc.CreateElement("failure")
			f.CreateAttr("message", step.Error)
			f.SetText(fmt.Sprintf("line %d: %s\n%s", step.Line, step.Text, step.Error))
		case schemas.StepSkipped:
			skipped++
			tc.CreateElement("skipped")
		}
	}

	// A failure with no failed step means the suite itself broke, e.g.
	// a parse error or an unopenable page.
	if suite.Status == schemas.SuiteFailed && suite.Error != "" {
		tc := el.CreateElement("testcase")
		tc.CreateAttr("classname", suite.Name)
		tc.CreateAttr("name", "(suite setup)")
		tc.CreateAttr("time", formatSeconds(0))
		e := tc.CreateElement("error")
		e.CreateAttr("message", suite.Error)
		tests++
		errors++
	}

	el.CreateAttr("tests", strconv.Itoa(tests))
	el.CreateAttr("failures", strconv.Itoa(failures))
	el.CreateAttr("skipped", strconv.Itoa(skipped))
	el.CreateAttr("errors", strconv.Itoa(errors))
	return tests, failures, skipped, errors
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
