package logging_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-admin-client/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	prevLevel, prevLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{level: "debug", want: zerolog.DebugLevel},
		{level: " WARN ", want: zerolog.WarnLevel},
		{level: "", want: zerolog.InfoLevel},
		{level: "chatty", want: zerolog.InfoLevel},
	}
	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			require.Equal(t, tc.want, logging.Setup(&buf, tc.level))
			require.Equal(t, tc.want, zerolog.GlobalLevel())
		})
	}

	t.Run("filters below the level", func(t *testing.T) {
		var buf bytes.Buffer
		logging.Setup(&buf, "warn")
		log.Info().Msg("hidden")
		log.Warn().Msg("shown")
		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), "shown")
	})
}
