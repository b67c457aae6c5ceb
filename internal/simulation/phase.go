package simulation

import "time"

// Mode is the data regime a competition runs under, fixed at creation.
type Mode string

const (
	ModeSimulated  Mode = "simulated"
	ModeHistorical Mode = "historical"
	ModeHybrid     Mode = "hybrid"
)

// Phase is the scheduler state of a running competition. Phase determines
// tick pacing and where the tick's market snapshot comes from.
type Phase string

const (
	PhaseHistoricalReplay Phase = "historical_replay"
	PhaseCatchUp          Phase = "catch_up"
	PhaseRealtime         Phase = "realtime"
)

// initialPhase picks the starting phase for a mode. Every mode starts in
// replay pacing; simulated and historical competitions stay there for
// their whole life.
func initialPhase(Mode) Phase {
	return PhaseHistoricalReplay
}

// nextPhase computes the phase for the following tick. Only hybrid
// competitions ever move: replay exhausts into catch-up while the replayed
// calendar still trails today, then realtime once the gap is closed. The
// comparison is at UTC day granularity.
func nextPhase(mode Mode, cur Phase, replayExhausted bool, currentDate, today time.Time) Phase {
	if mode != ModeHybrid {
		return cur
	}

	gapRemaining := dayOf(currentDate).Before(dayOf(today))
	switch cur {
	case PhaseHistoricalReplay:
		if replayExhausted {
			if gapRemaining {
				return PhaseCatchUp
			}
			return PhaseRealtime
		}
	case PhaseCatchUp:
		if !gapRemaining {
			return PhaseRealtime
		}
	}
	return cur
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// nextWeekday advances from d by at least one calendar day, skipping
// weekends. The simulation day counter is advanced separately; only the
// calendar jumps.
func nextWeekday(d time.Time) time.Time {
	d = d.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
