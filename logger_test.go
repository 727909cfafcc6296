package compute

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/backend/software"
	"github.com/gogpu/compute/gpucore"
)

func TestNopHandler_Enabled(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
}

func TestNopHandler_Derived(t *testing.T) {
	h := nopHandler{}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("key", "val")}).(nopHandler); !ok {
		t.Error("nopHandler.WithAttrs() did not return a nopHandler")
	}
	if _, ok := h.WithGroup("group").(nopHandler); !ok {
		t.Error("nopHandler.WithGroup() did not return a nopHandler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)

	if Logger() != custom {
		t.Fatal("Logger() did not return the custom logger set via SetLogger")
	}

	c, err := NewContext(WithBackend(backend.BackendSoftware))
	if err != nil {
		t.Fatalf("NewContext() = %v", err)
	}
	defer c.Close()
	if !strings.Contains(buf.String(), "context opened") {
		t.Errorf("expected context lifecycle log, got: %s", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) should set nop logger, not nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

// loggingAdapter records the logger it was handed.
type loggingAdapter struct {
	gpucore.Adapter
	mu     sync.Mutex
	logger *slog.Logger
}

func (a *loggingAdapter) SetLogger(l *slog.Logger) {
	a.mu.Lock()
	a.logger = l
	a.mu.Unlock()
}

func (a *loggingAdapter) current() *slog.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logger
}

func TestNewContextPropagatesCurrentLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)

	a := &loggingAdapter{Adapter: software.New()}
	defer a.Destroy()
	c, err := NewContext(WithAdapter(a))
	if err != nil {
		t.Fatalf("NewContext() = %v", err)
	}
	defer c.Close()

	if a.current() != custom {
		t.Error("NewContext did not hand the current logger to its adapter")
	}
}

func TestSetLoggerPropagatesToOpenContexts(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	a := &loggingAdapter{Adapter: software.New()}
	defer a.Destroy()
	c, err := NewContext(WithAdapter(a))
	if err != nil {
		t.Fatalf("NewContext() = %v", err)
	}

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)
	if a.current() != custom {
		t.Error("SetLogger did not propagate to the adapter via loggerSetter")
	}

	// Closed contexts stop receiving loggers.
	_ = c.Close()
	SetLogger(nil)
	if a.current() != custom {
		t.Error("SetLogger reached the adapter of a closed context")
	}
}

func TestUntrackAdapterSharedByTwoContexts(t *testing.T) {
	a := &loggingAdapter{Adapter: software.New()}
	defer a.Destroy()

	trackAdapter(a)
	trackAdapter(a)
	untrackAdapter(a)

	liveMu.Lock()
	n := liveAdps[a]
	liveMu.Unlock()
	if n != 1 {
		t.Errorf("live count = %d, want 1", n)
	}

	untrackAdapter(a)
	liveMu.Lock()
	_, ok := liveAdps[a]
	liveMu.Unlock()
	if ok {
		t.Error("adapter still tracked after last untrack")
	}
}

func TestLoggerConcurrentAccess(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	const goroutines = 100

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := Logger()
			if l == nil {
				t.Error("Logger() returned nil during concurrent access")
			}
			l.Debug("concurrent read")
		}()
	}
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetLogger(slog.Default())
			SetLogger(nil)
		}()
	}
	wg.Wait()
}

func BenchmarkLoggerDisabledLog(b *testing.B) {
	l := Logger()
	b.ReportAllocs()
	for b.Loop() {
		l.Debug("message", "key", "value")
	}
}
