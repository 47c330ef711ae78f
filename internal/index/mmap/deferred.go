package mmap

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

type pendingClose struct {
	closer io.Closer
	due    time.Time
}

// DeferredCloser closes resources after a grace period on a single
// background goroutine.
type DeferredCloser struct {
	mu      sync.Mutex
	pending []pendingClose
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// NewDeferredCloser starts the closer goroutine.
func NewDeferredCloser() *DeferredCloser {
	d := &DeferredCloser{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  slog.Default().With("component", "deferred-closer"),
	}
	go d.run()
	return d
}

// Schedule queues c to be closed once grace has elapsed. A non-positive
// grace closes c on the next loop iteration, still off the caller's goroutine.
func (d *DeferredCloser) Schedule(c io.Closer, grace time.Duration) {
	select {
	case <-d.done:
		// closer already stopped; close synchronously rather than leak
		if err := c.Close(); err != nil {
			d.logger.Error("close after shutdown failed", "error", err)
		}
		return
	default:
	}
	d.mu.Lock()
	d.pending = append(d.pending, pendingClose{closer: c, due: time.Now().Add(grace)})
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of resources waiting to be closed.
func (d *DeferredCloser) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops the goroutine and closes everything still queued, ignoring
// remaining grace periods.
func (d *DeferredCloser) Close() error {
	d.once.Do(func() {
		close(d.done)
	})
	<-d.stopped
	return nil
}

func (d *DeferredCloser) run() {
	defer close(d.stopped)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		next := d.closeDue(time.Now())
		if next.IsZero() {
			next = time.Now().Add(time.Hour)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(next))

		select {
		case <-d.done:
			d.closeDue(time.Time{})
			return
		case <-d.wake:
		case <-timer.C:
		}
	}
}

// closeDue closes every entry due at or before now and returns the earliest
// remaining due time. A zero now closes everything.
func (d *DeferredCloser) closeDue(now time.Time) time.Time {
	d.mu.Lock()
	var due []io.Closer
	var keep []pendingClose
	var next time.Time
	for _, p := range d.pending {
		if now.IsZero() || !p.due.After(now) {
			due = append(due, p.closer)
			continue
		}
		keep = append(keep, p)
		if next.IsZero() || p.due.Before(next) {
			next = p.due
		}
	}
	d.pending = keep
	d.mu.Unlock()

	for _, c := range due {
		if err := c.Close(); err != nil {
			d.logger.Error("deferred close failed", "error", err)
		}
	}
	return next
}
