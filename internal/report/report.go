// Package report renders finished run manifests as HTML or JUnit XML
// and follows live result streams on the terminal.
package report

import (
	"fmt"
	"io"
	"os"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// Renderer writes one finished run manifest to its output.
type Renderer interface {
	// Render produces the report and closes the underlying output.
	Render(m *schemas.RunManifest) error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a renderer for the given format. An empty or "stdout"
// output path writes to standard output. The artifactsDir, when set,
// rebases screenshot links in HTML output so the file works from
// inside the run directory.
func New(format, outputPath, artifactsDir string, log *zap.Logger) (Renderer, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("creating report output %s: %w", outputPath, err)
		}
		writer = f
	}

	cleanup := func() {
		if !isStdOut {
			writer.Close()
		}
	}

	switch format {
	case "html":
		return NewHTMLRenderer(writer, artifactsDir, log), nil
	case "junit":
		return NewJUnitRenderer(writer, log), nil
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// LoadManifest reads a manifest.json from disk.
func LoadManifest(path string) (*schemas.RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m schemas.RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &m, nil
}
