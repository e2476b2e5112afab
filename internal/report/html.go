package report

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// HTMLRenderer writes a self-contained HTML report. It is a single file
// with inline styles, so it can be mailed around or archived as-is.
type HTMLRenderer struct {
	writer io.WriteCloser
	base   string
	logger *zap.Logger
}

// NewHTMLRenderer creates an HTML renderer that takes ownership of the
// writer. Screenshot paths are rewritten relative to base when set, so
// links resolve for a report saved inside the run directory.
func NewHTMLRenderer(writer io.WriteCloser, base string, log *zap.Logger) *HTMLRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTMLRenderer{writer: writer, base: base, logger: log.Named("html_report")}
}

// Render executes the report template and closes the output.
func (r *HTMLRenderer) Render(m *schemas.RunManifest) error {
	start := time.Now()

	view := r.buildView(m)
	execErr := reportTemplate.Execute(r.writer, view)
	closeErr := r.writer.Close()

	if execErr != nil {
		r.logger.Error("failed to render html report", zap.Error(execErr))
		return fmt.Errorf("rendering html report: %w", execErr)
	}
	if closeErr != nil {
		r.logger.Error("failed to close report output", zap.Error(closeErr))
		return fmt.Errorf("closing report output: %w", closeErr)
	}

	r.logger.Info("wrote html report",
		zap.String("run_id", m.RunID),
		zap.Int("suites", len(m.Suites)),
		zap.Duration("took", time.Since(start)))
	return nil
}

type runView struct {
	Title       string
	RunID       string
	Status      string
	StartedAt   string
	Duration    string
	GeneratedAt string
	Totals      schemas.RunTotals
	PassPercent int
	Suites      []suiteView
}

type suiteView struct {
	Name     string
	Path     string
	Status   string
	Duration string
	Error    string
	Passed   int
	Failed   int
	Skipped  int
	Steps    []stepView
}

type stepView struct {
	Index      int
	Line       int
	Verb       string
	Text       string
	Status     string
	Duration   string
	Error      string
	Screenshot string
}

func (r *HTMLRenderer) buildView(m *schemas.RunManifest) runView {
	status := string(schemas.SuitePassed)
	if m.Failed() {
		status = string(schemas.SuiteFailed)
	}

	view := runView{
		Title:       m.Title,
		RunID:       m.RunID,
		Status:      status,
		StartedAt:   m.StartedAt.Format("2006-01-02 15:04:05 MST"),
		Duration:    formatDuration(m.Duration),
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05 MST"),
		Totals:      m.Totals,
	}
	if m.Totals.Steps > 0 {
		view.PassPercent = 100 * m.Totals.Passed / m.Totals.Steps
	}

	for _, suite := range m.Suites {
		passed, failed, skipped := suite.Counts()
		sv := suiteView{
			Name:     suite.Name,
			Path:     suite.Path,
			Status:   string(suite.Status),
			Duration: formatDuration(suite.Duration),
			Error:    suite.Error,
			Passed:   passed,
			Failed:   failed,
			Skipped:  skipped,
		}
		for _, step := range suite.Steps {
			sv.Steps = append(sv.Steps, stepView{
				Index:      step.Index,
				Line:       step.Line,
				Verb:       step.Verb,
				Text:       step.Text,
				Status:     string(step.Status),
				Duration:   formatDuration(step.Duration),
				Error:      step.Error,
				Screenshot: r.relink(step.Screenshot),
			})
		}
		view.Suites = append(view.Suites, sv)
	}
	return view
}

// relink rebases an absolute screenshot path onto the report location.
func (r *HTMLRenderer) relink(path string) string {
	if path == "" || r.base == "" {
		return path
	}
	rel, err := filepath.Rel(r.base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": strings.ToLower,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f4f5f7; color: #1d2330; }
  header { background: #1d2330; color: #fff; padding: 1.2rem 2rem; }
  header h1 { margin: 0 0 .3rem; font-size: 1.3rem; }
  header .meta { color: #aab2c0; font-size: .85rem; }
  main { max-width: 960px; margin: 1.5rem auto; padding: 0 1rem; }
  .totals { display: flex; gap: 1rem; margin-bottom: 1.5rem; flex-wrap: wrap; }
  .totals .card { background: #fff; border-radius: 6px; padding: .8rem 1.2rem; box-shadow: 0 1px 2px rgba(0,0,0,.08); min-width: 6rem; }
  .totals .card b { display: block; font-size: 1.4rem; }
  .bar { height: 6px; border-radius: 3px; background: #d8dce3; overflow: hidden; margin-bottom: 1.5rem; }
  .bar span { display: block; height: 100%; background: #2f9e44; }
  .status { display: inline-block; padding: .1rem .5rem; border-radius: 3px; font-size: .75rem; font-weight: 600; }
  .status.passed { background: #d3f2dc; color: #1f7a33; }
  .status.failed { background: #fde0dd; color: #b3261e; }
  .status.skipped { background: #e7e9ee; color: #5b6472; }
  details { background: #fff; border-radius: 6px; margin-bottom: 1rem; box-shadow: 0 1px 2px rgba(0,0,0,.08); }
  summary { cursor: pointer; padding: .8rem 1.2rem; display: flex; align-items: center; gap: .8rem; }
  summary .name { font-weight: 600; }
  summary .counts { margin-left: auto; color: #5b6472; font-size: .85rem; }
  .suite-error { margin: 0 1.2rem 1rem; padding: .6rem .8rem; background: #fde0dd; border-radius: 4px; font-family: ui-monospace, monospace; font-size: .8rem; white-space: pre-wrap; }
  table { width: 100%; border-collapse: collapse; font-size: .85rem; }
  th, td { text-align: left; padding: .45rem 1.2rem; border-top: 1px solid #edf0f4; }
  th { color: #5b6472; font-weight: 600; font-size: .75rem; text-transform: uppercase; }
  td.num { color: #8a93a3; width: 2rem; }
  td.text { font-family: ui-monospace, monospace; }
  tr.failed td { background: #fff5f4; }
  .step-error { color: #b3261e; font-size: .8rem; white-space: pre-wrap; }
  footer { text-align: center; color: #8a93a3; font-size: .75rem; margin: 2rem 0; }
</style>
</head>
<body>
<header>
  <h1>{{.Title}} <span class="status {{lower .Status}}">{{.Status}}</span></h1>
  <div class="meta">run {{.RunID}} &middot; started {{.StartedAt}} &middot; took {{.Duration}}</div>
</header>
<main>
  <div class="totals">
    <div class="card"><b>{{.Totals.Suites}}</b>suites</div>
    <div class="card"><b>{{.Totals.Steps}}</b>steps</div>
    <div class="card"><b>{{.Totals.Passed}}</b>passed</div>
    <div class="card"><b>{{.Totals.Failed}}</b>failed</div>
    <div class="card"><b>{{.Totals.Skipped}}</b>skipped</div>
  </div>
  <div class="bar"><span style="width: {{.PassPercent}}%"></span></div>
  {{range .Suites}}
  <details{{if ne .Status "PASSED"}} open{{end}}>
    <summary>
      <span class="status {{lower .Status}}">{{.Status}}</span>
      <span class="name">{{.Name}}</span>
      <span class="counts">{{.Passed}} passed &middot; {{.Failed}} failed &middot; {{.Skipped}} skipped &middot; {{.Duration}}</span>
    </summary>
    {{if .Error}}<div class="suite-error">{{.Error}}</div>{{end}}
    {{if .Steps}}
    <table>
      <tr><th></th><th>Line</th><th>Step</th><th>Status</th><th>Time</th></tr>
      {{range .Steps}}
      <tr class="{{lower .Status}}">
        <td class="num">{{.Index}}</td>
        <td class="num">{{.Line}}</td>
        <td class="text">{{.Text}}
          {{if .Error}}<div class="step-error">{{.Error}}</div>{{end}}
          {{if .Screenshot}}<div><a href="{{.Screenshot}}">screenshot</a></div>{{end}}
        </td>
        <td><span class="status {{lower .Status}}">{{.Status}}</span></td>
        <td>{{.Duration}}</td>
      </tr>
      {{end}}
    </table>
    {{end}}
  </details>
  {{end}}
</main>
<footer>generated {{.GeneratedAt}}</footer>
</body>
</html>
`))
