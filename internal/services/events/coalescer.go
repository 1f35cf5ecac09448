package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
)

// ViewCoalescer batches job views before they reach a push channel.
// Per kind, at most one view is forwarded per interval while the job is being
// polled; the newest view wins. A view that is not polling (the run ended,
// a command was refused, the user stopped watching) is forwarded at once.
// Views older than the last forwarded revision are dropped.
type ViewCoalescer struct {
	mu        sync.Mutex
	interval  time.Duration
	pending   map[models.JobKind]monitor.View
	lastRev   map[models.JobKind]uint64
	lastFlush map[models.JobKind]time.Time
	onFlush   func(views []monitor.View)
	now       func() time.Time
	logger    arbor.ILogger
}

// NewViewCoalescer creates a coalescer. onFlush runs with the coalescer
// locked and must not block.
func NewViewCoalescer(interval time.Duration, onFlush func(views []monitor.View), logger arbor.ILogger) *ViewCoalescer {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &ViewCoalescer{
		interval:  interval,
		pending:   make(map[models.JobKind]monitor.View),
		lastRev:   make(map[models.JobKind]uint64),
		lastFlush: make(map[models.JobKind]time.Time),
		onFlush:   onFlush,
		now:       time.Now,
		logger:    logger,
	}
}

// Record offers a view for forwarding
func (c *ViewCoalescer) Record(v monitor.View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.Revision != 0 && v.Revision <= c.lastRev[v.Kind] {
		return
	}
	if p, ok := c.pending[v.Kind]; ok && p.Revision > v.Revision {
		return
	}

	now := c.now()
	if !v.IsPolling || now.Sub(c.lastFlush[v.Kind]) >= c.interval {
		delete(c.pending, v.Kind)
		c.sendLocked([]monitor.View{v}, now)
		return
	}
	c.pending[v.Kind] = v
}

// Flush forwards every pending view
func (c *ViewCoalescer) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Pending returns the number of views waiting for the next flush
func (c *ViewCoalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Start flushes pending views every interval until ctx is done
func (c *ViewCoalescer) Start(ctx context.Context) {
	common.SafeGo(c.logger, "view-coalescer", func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.Flush()
				return
			case <-ticker.C:
				c.Flush()
			}
		}
	})
}

func (c *ViewCoalescer) flushLocked() {
	if len(c.pending) == 0 {
		return
	}
	views := make([]monitor.View, 0, len(c.pending))
	for kind, v := range c.pending {
		views = append(views, v)
		delete(c.pending, kind)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Kind < views[j].Kind })
	c.sendLocked(views, c.now())
}

func (c *ViewCoalescer) sendLocked(views []monitor.View, now time.Time) {
	for _, v := range views {
		c.lastRev[v.Kind] = v.Revision
		c.lastFlush[v.Kind] = now
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Int("views", len(views)).
				Msg("View coalescer flush panicked")
		}
	}()
	c.onFlush(views)
}
