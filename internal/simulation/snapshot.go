package simulation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/chat"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
)

// Snapshot is the persisted unit: everything needed to resume a
// competition after a restart. One document per competition id.
type Snapshot struct {
	CompetitionID string                    `json:"competition_id"`
	Mode          Mode                      `json:"mode"`
	Phase         Phase                     `json:"phase"`
	Day           int                       `json:"day"`
	IntradayHour  float64                   `json:"intraday_hour"`
	StartDate     time.Time                 `json:"start_date"`
	CurrentDate   time.Time                 `json:"current_date"`
	Market        marketdata.MarketSnapshot `json:"market"`
	Agents        []*Agent                  `json:"agents"`
	Benchmarks    []*Benchmark              `json:"benchmarks"`
	Chat          *chat.State               `json:"chat,omitempty"`
	IsComplete    bool                      `json:"is_complete"`
	LastUpdated   time.Time                 `json:"last_updated"`
	SavedAt       time.Time                 `json:"saved_at"`
}

// Snapshot builds a persistable deep copy of the instance. The copy is
// taken under the lock; serialization and the disk write happen outside.
func (inst *Instance) Snapshot() *Snapshot {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	s := &Snapshot{
		CompetitionID: inst.cfg.ID,
		Mode:          inst.mode,
		Phase:         inst.phase,
		Day:           inst.day,
		IntradayHour:  inst.intradayHour,
		StartDate:     inst.startDate,
		CurrentDate:   inst.currentDate,
		Market:        inst.market.Clone(),
		IsComplete:    inst.isComplete,
		LastUpdated:   inst.lastUpdated,
		SavedAt:       inst.clock(),
	}
	for _, a := range inst.agents {
		cp := copyAgent(a)
		s.Agents = append(s.Agents, &cp)
	}
	for _, b := range inst.benchmarks {
		cp := copyBenchmark(b)
		s.Benchmarks = append(s.Benchmarks, &cp)
	}
	if inst.chat != nil {
		cs := inst.chat.StateCopy()
		s.Chat = &cs
	}
	return s
}

// Restore applies a loaded snapshot, resuming phase, clock, portfolios and
// chat where the last save left off.
func (inst *Instance) Restore(s *Snapshot) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.mode = s.Mode
	inst.phase = s.Phase
	inst.day = s.Day
	inst.intradayHour = s.IntradayHour
	inst.startDate = s.StartDate
	inst.currentDate = s.CurrentDate
	inst.market = s.Market.Clone()
	inst.agents = s.Agents
	inst.benchmarks = s.Benchmarks
	inst.isComplete = s.IsComplete
	inst.lastUpdated = s.LastUpdated
	inst.isLoading = false

	// The restored window counts as already traded so restarting inside a
	// window does not solicit a second round of decisions.
	inst.lastWindowDay = s.Day
	inst.lastWindowIdx = int(s.IntradayHour) / inst.cfg.TradeWindowHours

	if s.Chat != nil && inst.cfg.ChatEnabled {
		inst.chat = chat.NewScheduler(s.Chat, inst.log)
	}
	inst.seedSynthetic()
}

// Store reads and writes competition snapshots as JSON files, one per
// competition id.
type Store struct {
	dir string
	log zerolog.Logger
}

func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log.With().Str("component", "store").Logger()}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("simulation-%s.json", id))
}

// Save writes the snapshot atomically: temp file in the same directory,
// fsync, then rename over the previous version.
func (s *Store) Save(snap *Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.CompetitionID, err)
	}

	final := s.path(snap.CompetitionID)
	tmp, err := os.CreateTemp(s.dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", snap.CompetitionID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot %s: %w", snap.CompetitionID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", snap.CompetitionID, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("rename snapshot %s: %w", snap.CompetitionID, err)
	}

	s.log.Debug().Str("competition", snap.CompetitionID).Str("path", final).Msg("snapshot saved")
	return nil
}

// Load reads a competition's snapshot. A missing file returns (nil, nil):
// the caller initializes fresh. A corrupt file returns an error; the
// caller treats it the same way but logs it.
func (s *Store) Load(id string) (*Snapshot, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", id, err)
	}
	if snap.CompetitionID != id {
		return nil, fmt.Errorf("snapshot %s: id mismatch %q", id, snap.CompetitionID)
	}
	return &snap, nil
}
