package runner

import (
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// StreamWriter appends run events to a JSONL destination as they happen.
// Emissions are serialized, so suites running on different goroutines can
// share one writer. A nil StreamWriter drops every event, sparing callers
// the nil check.
type StreamWriter struct {
	mu  sync.Mutex
	w   io.Writer
	log *zap.Logger
}

// NewStreamWriter wraps w. Events that fail to encode or write are logged
// and dropped; a broken stream must never fail the run itself.
func NewStreamWriter(w io.Writer, log *zap.Logger) *StreamWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamWriter{w: w, log: log.Named("stream")}
}

// Emit writes one event line, stamping the emission time.
func (s *StreamWriter) Emit(ev schemas.StreamEvent) {
	if s == nil || s.w == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	line, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("failed to encode stream event", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		s.log.Warn("failed to write stream event", zap.Error(err))
	}
}
