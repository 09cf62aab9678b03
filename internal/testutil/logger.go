package testutil

import (
	"log/slog"

	"github.com/exocortex/exocortex/internal/log"
)

// DiscardLogger returns a logger that drops everything, for tests that
// should stay quiet.
func DiscardLogger() *slog.Logger {
	return log.NewNop()
}
