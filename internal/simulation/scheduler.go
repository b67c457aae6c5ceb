package simulation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
)

// Scheduler drives one instance's tick loop on its own timer. Intervals
// follow the instance's current phase; a tick still running when the next
// fires is skipped, never queued.
type Scheduler struct {
	inst    *Instance
	log     zerolog.Logger
	clock   func() time.Time
	onPanic func(v any)
	ticking atomic.Bool
	wg      sync.WaitGroup
	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
}

func NewScheduler(inst *Instance, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		inst:  inst,
		log:   log.With().Str("component", "scheduler").Str("competition", inst.ID()).Logger(),
		clock: time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the tick loop. Safe to call once.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
	s.log.Info().Dur("interval", s.inst.TickInterval()).Msg("scheduler started")
}

// Stop halts the loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	if !s.started.Load() {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.inst.TickInterval())
	defer ticker.Stop()

	interval := s.inst.TickInterval()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.fire()
			// Phase transitions change the pacing; follow them.
			if next := s.inst.TickInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				s.log.Info().Str("phase", string(s.inst.Phase())).Dur("interval", interval).Msg("tick interval changed")
			}
		}
	}
}

// fire runs one tick unless the previous one is still going or the
// instance should not tick right now.
func (s *Scheduler) fire() {
	if s.inst.IsComplete() {
		return
	}
	if s.inst.Phase() == PhaseRealtime && !marketdata.MarketOpen(s.clock()) {
		return
	}
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warn().Msg("previous tick still running, skipping")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.ticking.Store(false)
		// A panicking decider must not take the process down without a
		// final snapshot. The fault is contained here and reported up.
		defer func() {
			if v := recover(); v != nil {
				s.log.Error().Interface("panic", v).Msg("tick panicked")
				if s.onPanic != nil {
					s.onPanic(v)
				}
			}
		}()
		s.inst.Tick(context.Background())
	}()
}
