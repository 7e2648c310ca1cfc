/*
Package logger provides loggers for tests. Output goes to the test log so
it is shown only for failing tests (or with -v).
*/
package logger

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/rainbow-dao/drn/logger"
)

// New returns DEBUG level logger writing into t.Log.
func New(t testing.TB) *slog.Logger {
	return NewLvl(t, slog.LevelDebug)
}

// NewLvl returns logger of given level writing into t.Log.
// Colors are disabled by setting DRN_TEST_LOG_NO_COLORS=true.
func NewLvl(t testing.TB, level slog.Level) *slog.Logger {
	noColor, _ := strconv.ParseBool(os.Getenv("DRN_TEST_LOG_NO_COLORS"))
	l, err := newLogger(testWriter{t: t}, level, noColor)
	if err != nil {
		t.Fatalf("creating test logger: %v", err)
	}
	return l
}

func newLogger(w io.Writer, level slog.Level, noColor bool) (*slog.Logger, error) {
	return logger.New(&logger.LogConfiguration{
		Level:      level.String(),
		Format:     logger.FormatConsole,
		TimeFormat: "15:04:05.0000",
		NoColor:    noColor,
		Writer:     w,
	})
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
