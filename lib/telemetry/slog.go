package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the default text handler. Debug builds and tests log
// at debug level, everything else at info.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
