package observ

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger = newLogger(os.Stdout)
	runID  string
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetOutput redirects all events to w.
func SetOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = newLogger(w).Level(logger.GetLevel())
}

// SetLevel accepts debug, info, warn or error. Unknown values leave the level unchanged.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	logger = logger.Level(lvl)
}

// WithRunID tags every subsequent event with run_id. An empty id clears it.
func WithRunID(id string) {
	logMu.Lock()
	defer logMu.Unlock()
	runID = id
}

// Log emits one info-level JSON line: {"level","ts","event",...kv}.
func Log(event string, kv map[string]any) {
	emit(zerolog.InfoLevel, event, kv)
}

// Debug emits a debug-level event.
func Debug(event string, kv map[string]any) {
	emit(zerolog.DebugLevel, event, kv)
}

// Warn emits a warn-level event.
func Warn(event string, kv map[string]any) {
	emit(zerolog.WarnLevel, event, kv)
}

// Error emits an error-level event.
func Error(event string, kv map[string]any) {
	emit(zerolog.ErrorLevel, event, kv)
}

func emit(level zerolog.Level, event string, kv map[string]any) {
	logMu.RLock()
	l, id := logger, runID
	logMu.RUnlock()

	e := l.WithLevel(level)
	if e == nil {
		return
	}
	if id != "" {
		e = e.Str("run_id", id)
	}
	if len(kv) > 0 {
		e = e.Fields(kv)
	}
	e.Str("event", event).Send()
}
