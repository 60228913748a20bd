package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// NewDev creates a colorized, human-readable logger for local
// development, using tint instead of the JSON handler New builds.
// Context extractors behave identically to New.
func NewDev(extractors ...ContextExtractor) *slog.Logger {
	h := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	})
	return slog.New(NewLogHandlerDecorator(h, extractors...))
}
