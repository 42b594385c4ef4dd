package pathoram

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// evictorState is the background evictor's state machine (spec.md
// §4.5).
type evictorState int

const (
	evictorIdle evictorState = iota
	evictorEvictingLight
	evictorEvictingCritical
)

func (s evictorState) String() string {
	switch s {
	case evictorIdle:
		return "idle"
	case evictorEvictingLight:
		return "evicting-light"
	case evictorEvictingCritical:
		return "evicting-critical"
	default:
		return "unknown"
	}
}

// evictor is the single long-lived cooperative task spec.md §4.5 and
// §9 describe: it wakes on a jittered interval, acquires the
// engine's lock for at most one full-eviction pass, and releases it —
// it never blocks a public operation beyond that.
type evictor struct {
	e *engine

	mu    sync.Mutex
	state evictorState

	lightRoundsWithoutShrink int
	lastStashSize            int

	stop1    chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	backoff *backoff.ExponentialBackOff
}

func newEvictor(e *engine) *evictor {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0 // never give up on its own; stop() ends the loop instead

	return &evictor{
		e:       e,
		state:   evictorIdle,
		stop1:   make(chan struct{}),
		done:    make(chan struct{}),
		backoff: b,
	}
}

func (ev *evictor) start() {
	go ev.run()
}

// stop clears the running flag and blocks until the goroutine has
// exited — spec.md §4.5's "Termination": no operations may be issued
// after destruction begins, and the destructor joins the task.
func (ev *evictor) stop() {
	ev.stopOnce.Do(func() {
		close(ev.stop1)
	})
	<-ev.done
}

func (ev *evictor) run() {
	defer close(ev.done)

	wait := ev.jitteredWake()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ev.stop1:
			return
		case <-timer.C:
			ev.tick()
			timer.Reset(ev.nextWake())
		}
	}
}

// jitteredWake returns a wake delay uniformly drawn from
// [EvictorWakeMin, EvictorWakeMax) — spec.md §4.5's "every 5-10 ms" —
// so the evictor's own schedule carries no fixed period an observer
// could key off of.
func (ev *evictor) jitteredWake() time.Duration {
	cfg := ev.e.cfg
	span := cfg.EvictorWakeMax - cfg.EvictorWakeMin
	if span <= 0 {
		return cfg.EvictorWakeMin
	}
	n, err := secureRandomIndex(int(span))
	if err != nil {
		return cfg.EvictorWakeMin
	}
	return cfg.EvictorWakeMin + time.Duration(n)
}

// nextWake returns the jittered 5-10ms interval normally, or a
// widening exponential backoff (base interval capped at 50ms, then
// randomized by ±20%, so at most 60ms) while the evictor
// believes it is in the critical state — giving a sustained write
// burst room to drain before the evictor re-contends for the lock.
func (ev *evictor) nextWake() time.Duration {
	ev.mu.Lock()
	critical := ev.state == evictorEvictingCritical
	ev.mu.Unlock()

	if critical {
		return ev.backoff.NextBackOff()
	}
	ev.backoff.Reset()
	return ev.jitteredWake()
}

// tick is one evictor wake: acquire the lock, decide the state
// transition, and run at most one full-eviction pass if warranted.
// It always releases the lock before returning.
func (ev *evictor) tick() {
	e := ev.e

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	stashSize := e.st.Len()

	ev.mu.Lock()
	prevState := ev.state
	switch prevState {
	case evictorIdle:
		if stashSize > e.wm.High {
			ev.state = evictorEvictingLight
			ev.lightRoundsWithoutShrink = 0
			ev.lastStashSize = stashSize
		}
	case evictorEvictingLight:
		if stashSize <= e.wm.Mid {
			ev.state = evictorIdle
		} else if stashSize >= ev.lastStashSize {
			ev.lightRoundsWithoutShrink++
			if ev.lightRoundsWithoutShrink >= 3 {
				ev.state = evictorEvictingCritical
			}
		} else {
			ev.lightRoundsWithoutShrink = 0
		}
		ev.lastStashSize = stashSize
	case evictorEvictingCritical:
		if stashSize <= e.wm.Mid {
			ev.state = evictorIdle
			ev.lightRoundsWithoutShrink = 0
		}
		ev.lastStashSize = stashSize
	}
	state := ev.state
	ev.mu.Unlock()

	if state == evictorIdle {
		return
	}

	roundLimit := e.cfg.NormalRoundLimit
	if state == evictorEvictingCritical {
		roundLimit = e.cfg.EmergencyRoundLimit
	}
	if err := e.fullEvictionLocked(roundLimit); err != nil {
		e.logger.Error("background evictor pass failed",
			zap.String("state", state.String()),
			zap.Error(err))
	}
}
