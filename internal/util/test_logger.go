package util

import (
	"testing"
	"time"

	"github.com/go-kit/log"
)

// TestLogger generates a logger for a test. Output goes through t.Log so it
// is only shown for failing or verbose tests.
func TestLogger(t testing.TB) log.Logger {
	t.Helper()

	l := log.NewSyncLogger(log.NewLogfmtLogger(testWriter{t}))
	return log.With(l,
		"test", t.Name(),
		"ts", log.Valuer(func() any { return time.Now().Format(time.RFC3339Nano) }),
	)
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
