package report

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// FollowOptions control how Follow consumes the stream.
type FollowOptions struct {
	// FromStart replays the whole stream instead of only printing
	// events recorded after the follow began.
	FromStart bool
}

// Follow tails a run's event stream, printing each event as it lands.
// The file may appear after the call starts and may be rotated under
// the reader. Follow returns nil once the stream carries a
// RUN_FINISHED event, or the context's error if canceled first.
func Follow(ctx context.Context, path string, out io.Writer, opts FollowOptions, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("follow")

	cfg := tail.Config{
		Follow: true,
		ReOpen: true,
		Poll:   true,
		Logger: tail.DiscardingLogger,
	}
	if !opts.FromStart {
		cfg.Location = &tail.SeekInfo{Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return fmt.Errorf("tailing %s: %w", path, err)
	}
	defer t.Cleanup()

	log.Info("following run stream", zap.String("path", path))
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				log.Warn("stream read error", zap.Error(line.Err))
				continue
			}
			var ev schemas.StreamEvent
			if err := json.Unmarshal([]byte(line.Text), &ev); err != nil {
				log.Debug("skipping unparseable stream line", zap.Error(err))
				continue
			}
			if s := formatEvent(ev); s != "" {
				io.WriteString(out, s)
			}
			if ev.Type == schemas.EventRunFinished {
				_ = t.Stop()
				return nil
			}
		}
	}
}
