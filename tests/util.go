package testutil

import (
	"testing"

	"github.com/trezcool/malipo/core"
)

// USD builds a dollar amount from its decimal string form.
func USD(t *testing.T, amount string) core.Money {
	t.Helper()
	m, err := core.MoneyFromString(amount, "USD")
	if err != nil {
		t.Fatalf("MoneyFromString(%q) failed: %v", amount, err)
	}
	return m
}

type testLogger struct {
	tb testing.TB
}

var _ core.Logger = (*testLogger)(nil)

// NewLogger returns a core.Logger that writes through the test's log.
func NewLogger(tb testing.TB) core.Logger {
	return &testLogger{tb: tb}
}

func (l testLogger) Enable(enabled bool) {}

func (l testLogger) log(level, msg string, args []interface{}) {
	l.tb.Helper()
	if len(args) > 0 {
		l.tb.Logf("%s: %s %v", level, msg, args)
		return
	}
	l.tb.Logf("%s: %s", level, msg)
}

func (l testLogger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }

// Fatal logs without killing the process so tests can assert on failures.
func (l testLogger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }
