package compute

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/compute/gpucore"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// live holds the adapters of open contexts so that SetLogger reaches them.
var (
	liveMu   sync.Mutex
	liveAdps = make(map[gpucore.Adapter]int)
)

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for compute and all its backends.
// By default, compute produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by compute:
//   - [slog.LevelDebug]: internal diagnostics (buffer sizes, bind groups, submissions)
//   - [slog.LevelInfo]: important lifecycle events (backend selected)
//   - [slog.LevelWarn]: non-fatal issues (failed maps, double release)
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	compute.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	adapters := make([]gpucore.Adapter, 0, len(liveAdps))
	for a := range liveAdps {
		adapters = append(adapters, a)
	}
	liveMu.Unlock()

	for _, a := range adapters {
		propagateLogger(a, l)
	}
}

// Logger returns the current logger used by compute.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by adapters that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to an adapter if it implements
// the loggerSetter interface.
func propagateLogger(a gpucore.Adapter, l *slog.Logger) {
	if ls, ok := a.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// trackAdapter registers an adapter of a new context and hands it the
// current logger.
func trackAdapter(a gpucore.Adapter) {
	liveMu.Lock()
	liveAdps[a]++
	liveMu.Unlock()
	propagateLogger(a, Logger())
}

func untrackAdapter(a gpucore.Adapter) {
	liveMu.Lock()
	defer liveMu.Unlock()
	if liveAdps[a] <= 1 {
		delete(liveAdps, a)
		return
	}
	liveAdps[a]--
}
