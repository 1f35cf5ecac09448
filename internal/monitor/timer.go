package monitor

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
)

// Scheduler creates cancellable repeating timers. The first call to fn
// happens one interval after Every returns.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Handle
}

// Handle cancels a repeating timer. Cancel is idempotent; once it returns
// the timer never starts another call to fn.
type Handle interface {
	Cancel()
}

// TickerScheduler runs each timer on its own goroutine driven by time.Ticker.
// A tick that arrives while fn is still running is dropped.
type TickerScheduler struct {
	logger arbor.ILogger
	name   string
}

// NewTickerScheduler creates a scheduler; name labels the timer goroutines
func NewTickerScheduler(logger arbor.ILogger, name string) *TickerScheduler {
	return &TickerScheduler{logger: logger, name: name}
}

type tickerHandle struct {
	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

func (h *tickerHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
}

func (h *tickerHandle) cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Every implements Scheduler
func (s *TickerScheduler) Every(interval time.Duration, fn func()) Handle {
	h := &tickerHandle{done: make(chan struct{})}

	common.SafeGo(s.logger, s.name, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				if h.cancelled() {
					return
				}
				s.run(fn)
			}
		}
	})

	return h
}

// run invokes one tick, keeping the timer alive if fn panics
func (s *TickerScheduler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			if s.logger != nil {
				s.logger.Error().
					Str("timer", s.name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(buf[:n])).
					Msg("Recovered from panic in timer tick")
			}
		}
	}()
	fn()
}
