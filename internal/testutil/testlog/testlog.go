package testlog

import (
	"testing"

	"github.com/danmuck/hashpipe/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logger := logging.ConfigureTests()
	logger.Info().Str("test", t.Name()).Msg("start")
}
