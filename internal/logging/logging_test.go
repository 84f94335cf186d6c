package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level  string
		format string
		stdio  bool
		want   zap.AtomicLevel
	}{
		{"debug", "console", false, zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"info", "json", false, zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"warn", "console", true, zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"error", "json", true, zap.NewAtomicLevelAt(zap.ErrorLevel)},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := New(tt.level, tt.format, tt.stdio)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want.Level()))
			assert.False(t, logger.Core().Enabled(tt.want.Level()-1))
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("loud", "console", false)
	assert.Error(t, err)
}
