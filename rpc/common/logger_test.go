package common

import (
	"bytes"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    logger.LogLevel
		wantErr bool
	}{
		{"debug", logger.DEBUG, false},
		{"INFO", logger.INFO, false},
		{"warn", logger.WARNING, false},
		{"warning", logger.WARNING, false},
		{"error", logger.ERROR, false},
		{"verbose", logger.INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := ParseLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitLoggersTo(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, InitLoggersTo(&first, "info"))
	t.Cleanup(func() { _ = InitLoggers("warn") })

	l := logger.GetLogger("rpc")
	l.Debugf("hidden")
	l.Infof("shown %d", 1)
	assert.Contains(t, first.String(), "INFO  | rpc")
	assert.Contains(t, first.String(), "shown 1")
	assert.NotContains(t, first.String(), "hidden")

	// a second call switches the output and level without reinstalling the factory
	require.NoError(t, InitLoggersTo(&second, "debug"))
	l.Debugf("now visible")
	assert.Contains(t, second.String(), "DEBUG | rpc")
	assert.NotContains(t, first.String(), "now visible")

	assert.Error(t, InitLoggersTo(&second, "loud"))
}
