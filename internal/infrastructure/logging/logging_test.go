package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ersonp/tidstore/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LogConfig
		verbose  bool
		expected zapcore.Level
		wantErr  bool
	}{
		{name: "defaults to info", cfg: config.LogConfig{}, expected: zapcore.InfoLevel},
		{name: "json warn", cfg: config.LogConfig{Level: "warn", Format: "json"}, expected: zapcore.WarnLevel},
		{name: "verbose wins", cfg: config.LogConfig{Level: "error"}, verbose: true, expected: zapcore.DebugLevel},
		{name: "bad level", cfg: config.LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.verbose)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.expected))
			if tt.expected > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.expected-1))
			}
		})
	}
}
