package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/connpool/internal/logging"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("enables the requested level", func(t *testing.T) {
		logger, err := logging.New("warn", "json")
		require.NoError(t, err)

		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("console format", func(t *testing.T) {
		logger, err := logging.New("debug", "console")
		require.NoError(t, err)

		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		_, err := logging.New("verbose", "json")
		assert.Error(t, err)

		_, err = logging.New("info", "xml")
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]zapcore.Level{
		"":       zapcore.InfoLevel,
		" info ": zapcore.InfoLevel,
		"DEBUG":  zapcore.DebugLevel,
		"warn":   zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
		"dpanic": zapcore.DPanicLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := logging.ParseLevel(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseLevel_Unknown(t *testing.T) {
	t.Parallel()

	_, err := logging.ParseLevel("verbose")

	require.ErrorContains(t, err, `unknown log level "verbose"`)
}
