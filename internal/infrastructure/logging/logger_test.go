package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"development default level", &Config{Env: "development"}, false},
		{"production debug", &Config{Env: "production", Level: "debug"}, false},
		{"unknown level", &Config{Env: "development", Level: "verbose"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(&Config{Env: "production", Level: "info", FilePath: path, AppID: "roadmap"})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"service.id":"roadmap"`)
}

func TestExtractLoggerFromContext(t *testing.T) {
	assert.NotNil(t, ExtractLoggerFromContext(context.Background()))

	logger := zap.NewExample()
	ctx := SetLoggerInContext(context.Background(), logger)
	assert.Same(t, logger, ExtractLoggerFromContext(ctx))
}
