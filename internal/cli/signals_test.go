package cli

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type signalWatch struct {
	sigCh    chan os.Signal
	done     chan struct{}
	returned chan struct{}
	stops    atomic.Int32
	exitCode atomic.Int32
	hook     *test.Hook
}

func startWatch(t *testing.T) *signalWatch {
	t.Helper()

	log, hook := test.NewNullLogger()

	w := &signalWatch{
		sigCh:    make(chan os.Signal, 2),
		done:     make(chan struct{}),
		returned: make(chan struct{}),
		hook:     hook,
	}
	w.exitCode.Store(-1)

	go func() {
		defer close(w.returned)
		watchSignals(w.sigCh, w.done, log, func() { w.stops.Add(1) }, func(code int) { w.exitCode.Store(int32(code)) })
	}()

	return w
}

func (w *signalWatch) wait(t *testing.T) {
	t.Helper()

	select {
	case <-w.returned:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not return")
	}
}

func Test_Watch_Signals_Stops_Then_Exits_When_Signalled_Twice(t *testing.T) {
	t.Parallel()

	w := startWatch(t)
	w.sigCh <- syscall.SIGINT
	w.sigCh <- syscall.SIGINT
	w.wait(t)

	if n := w.stops.Load(); n != 1 {
		t.Errorf("stops=%d, want=1", n)
	}

	if code := w.exitCode.Load(); code != exitCodeInterrupted {
		t.Errorf("exit code=%d, want=%d", code, exitCodeInterrupted)
	}

	if e := w.hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Errorf("last entry=%v, want the second-signal warning", e)
	}
}

func Test_Watch_Signals_Only_Stops_When_Signalled_Once(t *testing.T) {
	t.Parallel()

	w := startWatch(t)
	w.sigCh <- syscall.SIGTERM

	deadline := time.Now().Add(5 * time.Second)
	for w.stops.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	close(w.done)
	w.wait(t)

	if n := w.stops.Load(); n != 1 {
		t.Errorf("stops=%d, want=1", n)
	}

	if code := w.exitCode.Load(); code != -1 {
		t.Errorf("exit called with %d", code)
	}
}

func Test_Watch_Signals_Returns_When_Done_Without_Signal(t *testing.T) {
	t.Parallel()

	w := startWatch(t)
	close(w.done)
	w.wait(t)

	if w.stops.Load() != 0 || w.exitCode.Load() != -1 {
		t.Errorf("stops=%d exit=%d, want no action", w.stops.Load(), w.exitCode.Load())
	}
}
