package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextPhase(t *testing.T) {
	past := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name            string
		mode            Mode
		cur             Phase
		replayExhausted bool
		currentDate     time.Time
		want            Phase
	}{
		{"simulated never transitions", ModeSimulated, PhaseHistoricalReplay, true, past, PhaseHistoricalReplay},
		{"historical never transitions", ModeHistorical, PhaseHistoricalReplay, true, past, PhaseHistoricalReplay},
		{"hybrid replay continues", ModeHybrid, PhaseHistoricalReplay, false, past, PhaseHistoricalReplay},
		{"hybrid replay exhausted with gap", ModeHybrid, PhaseHistoricalReplay, true, past, PhaseCatchUp},
		{"hybrid replay exhausted at today", ModeHybrid, PhaseHistoricalReplay, true, today, PhaseRealtime},
		{"hybrid catch-up with gap", ModeHybrid, PhaseCatchUp, true, past, PhaseCatchUp},
		{"hybrid catch-up closed", ModeHybrid, PhaseCatchUp, true, today, PhaseRealtime},
		{"hybrid realtime stays", ModeHybrid, PhaseRealtime, true, today, PhaseRealtime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextPhase(tt.mode, tt.cur, tt.replayExhausted, tt.currentDate, today)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Same calendar day but different times of day closes the gap: the
// comparison is at day granularity.
func TestNextPhaseDayGranularity(t *testing.T) {
	morning := time.Date(2026, 8, 25, 0, 1, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)

	got := nextPhase(ModeHybrid, PhaseCatchUp, true, morning, evening)
	assert.Equal(t, PhaseRealtime, got)
}

func TestNextWeekday(t *testing.T) {
	fri := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC) // Friday
	mon := nextWeekday(fri)
	assert.Equal(t, time.Monday, mon.Weekday())
	assert.Equal(t, 24, mon.Day())

	tue := nextWeekday(mon)
	assert.Equal(t, time.Tuesday, tue.Weekday())
	assert.Equal(t, 25, tue.Day())
}
