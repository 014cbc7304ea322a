// Package loop implements the single-threaded cooperative event loop
// substrate (§4.10/§5): one goroutine drains a work queue fed by adapters
// and the configuration-store watcher, and a ticker periodically enqueues
// a Registry.Periodic() tick. Every job runs to completion before the next
// is dequeued — the concurrency model the rest of the core (tag store,
// rule index, session registry, target-layer registry) is written against
// and relies on for its lock-light bookkeeping.
//
// The teacher's own main() drives a periodic refresh with a bare
// goroutine+ticker pair (refreshImagesPeriodically in main.go); this
// package generalises that same shape into a job queue so that adapter
// callbacks, periodic ticks, and store-replay events all serialise through
// one goroutine instead of each owning an independent one.
package loop

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Job is one unit of work run on the loop goroutine.
type Job func()

// Loop is a single-goroutine cooperative scheduler: Post enqueues work from
// any goroutine, Run drains the queue on the calling goroutine until
// Stop is called or ctx is cancelled.
type Loop struct {
	jobs     chan Job
	tickerC  <-chan time.Time
	stopOnce sync.Once
	done     chan struct{}

	// OnTick, if set, is invoked (on the loop goroutine) every tick
	// interval — wired to Registry.Periodic by the process entry point.
	OnTick func()
}

// New creates a Loop with a queue capacity of 256 pending jobs — generous
// enough to absorb a burst of adapter-driven events between periodic
// ticks without blocking callers; Post still blocks past that, applying
// natural backpressure rather than growing unboundedly.
func New(tickInterval time.Duration) *Loop {
	l := &Loop{
		jobs: make(chan Job, 256),
		done: make(chan struct{}),
	}
	if tickInterval > 0 {
		ticker := time.NewTicker(tickInterval)
		l.tickerC = ticker.C
	}
	return l
}

// Post enqueues job to run on the loop goroutine. Safe to call from any
// goroutine, including from within a Job itself.
func (l *Loop) Post(job Job) {
	select {
	case l.jobs <- job:
	case <-l.done:
	}
}

// Run drains the job queue until ctx is cancelled or Stop is called,
// running each Job to completion before dequeuing the next, and invoking
// OnTick on every tick. It returns once draining stops.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case job := <-l.jobs:
			l.runJob(job)
		case <-l.tickerC:
			if l.OnTick != nil {
				l.runJob(l.OnTick)
			}
		}
	}
}

// runJob recovers a panicking job so one misbehaving adapter callback
// cannot take down the whole loop — the source's plugin boundary offered
// the same isolation implicitly via separate process address spaces per
// dlopen'd .so; a single Go process has no such wall, so the loop supplies
// one explicitly.
func (l *Loop) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[loop] recovered panic in job: %v", r)
		}
	}()
	job()
}

// Stop halts Run and unblocks any pending Post calls.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// WaitForSignal blocks until SIGINT or SIGTERM is received, then calls
// teardown (expected to run the ordered shutdown sequence from §6: stop
// store watch, delete every session, free the event index, tag store, and
// target-layer registry) and returns. teardown runs on the calling
// goroutine, not the loop goroutine — callers typically invoke this from
// main after starting Run in its own goroutine, then Stop the Loop once
// teardown completes.
func WaitForSignal(teardown func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("[loop] shutdown signal received")
	teardown()
}
