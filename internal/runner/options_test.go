package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/internal/engine"
)

func TestEngineOptionsMapping(t *testing.T) {
	c := config.EngineConfig{
		DefaultTimeout:    7 * time.Second,
		NavigationTimeout: 70 * time.Second,
		SettleDelay:       11 * time.Millisecond,
		PollInterval:      13 * time.Millisecond,
		SwitchSettle:      17 * time.Millisecond,
		SlowMo:            19 * time.Millisecond,
	}
	assert.Equal(t, engine.Options{
		SettleDelay:       11 * time.Millisecond,
		PollInterval:      13 * time.Millisecond,
		DefaultTimeout:    7 * time.Second,
		NavigationTimeout: 70 * time.Second,
		SwitchSettle:      17 * time.Millisecond,
		SlowMo:            19 * time.Millisecond,
	}, engineOptions(c))
}
