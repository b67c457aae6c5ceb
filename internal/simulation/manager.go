package simulation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/chat"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/config"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/performance"
	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/portfolio"
)

// Descriptor is the public listing entry for one competition type.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Mode        Mode   `json:"mode"`
	ChatEnabled bool   `json:"chat_enabled"`
	BlindMode   bool   `json:"blind_mode"`
	Enabled     bool   `json:"enabled"`
}

// Manager owns every competition instance, their schedulers, and snapshot
// persistence. It is the only writer of snapshots.
type Manager struct {
	mu         sync.RWMutex
	instances  map[string]*Instance
	schedulers map[string]*Scheduler
	order      []string

	cfg      config.Root
	provider *marketdata.Provider
	loader   *marketdata.HistoricalLoader
	store    *Store
	cron     *cron.Cron
	saving   atomic.Bool
	fatal    chan error
	log      zerolog.Logger
}

func NewManager(cfg config.Root, provider *marketdata.Provider, loader *marketdata.HistoricalLoader, store *Store, log zerolog.Logger) *Manager {
	return &Manager{
		instances:  make(map[string]*Instance),
		schedulers: make(map[string]*Scheduler),
		cfg:        cfg,
		provider:   provider,
		loader:     loader,
		store:      store,
		fatal:      make(chan error, 1),
		log:        log.With().Str("component", "manager").Logger(),
	}
}

// InitializeAll creates one instance per enabled competition. The initial
// market snapshot is fetched once and shared across instances so every
// competition starts from the same prices. Instances with a saved snapshot
// resume from it; a missing or corrupt snapshot means a fresh start.
func (m *Manager) InitializeAll(ctx context.Context) error {
	initial := m.provider.FetchSnapshot(ctx, m.cfg.MarketData.Tickers, nil)
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, comp := range m.cfg.Competitions {
		if !comp.Enabled {
			continue
		}

		// The snapshot is read first: a saved run's replay table must be
		// rebuilt from the saved start date, or the day index would point
		// at different calendar dates after an outage.
		saved, err := m.store.Load(comp.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("competition", comp.ID).Msg("snapshot unreadable, starting fresh")
		}

		start := replayStartFor(comp, saved, now)
		inst, err := m.buildInstance(ctx, comp, start)
		if err != nil {
			return err
		}

		if saved != nil {
			inst.Restore(saved)
			m.log.Info().Str("competition", comp.ID).Int("day", saved.Day).Str("phase", string(saved.Phase)).Msg("resumed from snapshot")
		} else {
			inst.Initialize(m.cfg.Agents, m.cfg.Benchmarks, initial, start)
			m.log.Info().Str("competition", comp.ID).Str("mode", comp.Mode).Msg("initialized fresh")
		}

		sched := NewScheduler(inst, m.log)
		sched.onPanic = func(v any) { m.handleTickPanic(comp.ID, v) }

		m.instances[comp.ID] = inst
		m.schedulers[comp.ID] = sched
		m.order = append(m.order, comp.ID)
	}
	return nil
}

func (m *Manager) buildInstance(ctx context.Context, comp config.Competition, start time.Time) (*Instance, error) {
	var replay *marketdata.ReplayTable
	if comp.Mode != string(ModeSimulated) {
		replay = m.loader.Load(ctx, m.cfg.MarketData.Tickers, start, time.Now().UTC())
		if replay.Len() == 0 {
			return nil, fmt.Errorf("competition %s: empty replay table", comp.ID)
		}
	}

	return NewInstance(InstanceDeps{
		Competition: comp,
		Tickers:     m.cfg.MarketData.Tickers,
		FeePerTrade: m.cfg.Trading.FeePerTrade,
		Provider:    m.provider,
		Synthetic:   marketdata.NewSyntheticSource(time.Now().UnixNano()),
		Replay:      replay,
		Engine:      portfolio.NewEngine(m.cfg.Trading.MaxPositionSizePct, m.log),
		Calculator:  performance.NewCalculator(m.cfg.Performance.RiskFreeRate),
		ChatConfig: chat.Config{
			Enabled:             comp.ChatEnabled,
			MaxMessagesPerUser:  m.cfg.Chat.MaxMessagesPerUser,
			MaxMessagesPerAgent: m.cfg.Chat.MaxMessagesPerAgent,
			MaxMessageLength:    m.cfg.Chat.MaxMessageLength,
		},
		Decider: NewMomentumDecider(),
		Logger:  m.log,
	}), nil
}

// replayStartFor resolves a competition's replay start date. A saved
// snapshot's start date wins so the rebuilt table lines day indexes up
// with the dates the run was saved against; otherwise the configured date
// applies, and without one replay covers the thirty calendar days before
// now.
func replayStartFor(comp config.Competition, saved *Snapshot, now time.Time) time.Time {
	if saved != nil && !saved.StartDate.IsZero() {
		return saved.StartDate
	}
	if comp.StartDate != "" {
		if d, err := time.Parse("2006-01-02", comp.StartDate); err == nil {
			return d
		}
	}
	return now.AddDate(0, 0, -30)
}

// Instance looks up a competition by id.
func (m *Manager) Instance(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// List returns descriptors for every configured competition in config
// order, enabled or not.
func (m *Manager) List() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Descriptor, 0, len(m.cfg.Competitions))
	for _, comp := range m.cfg.Competitions {
		out = append(out, Descriptor{
			ID:          comp.ID,
			Name:        comp.Name,
			Mode:        Mode(comp.Mode),
			ChatEnabled: comp.ChatEnabled,
			BlindMode:   comp.BlindMode,
			Enabled:     comp.Enabled,
		})
	}
	return out
}

// Fatal reports unrecoverable faults, currently only tick panics. The main
// loop treats a received error as a shutdown signal.
func (m *Manager) Fatal() <-chan error {
	return m.fatal
}

// handleTickPanic flushes every snapshot while state is still intact, then
// reports the fault. Further panics from other schedulers are logged but
// reported only once.
func (m *Manager) handleTickPanic(id string, v any) {
	m.log.Error().Str("competition", id).Interface("panic", v).Msg("tick panicked, flushing snapshots")
	m.SaveAll()
	select {
	case m.fatal <- fmt.Errorf("competition %s: tick panic: %v", id, v):
	default:
	}
}

// SubmitChat forwards a community message to the target competition.
func (m *Manager) SubmitChat(competitionID, sender, agentID, content string) (chat.Message, error) {
	inst, ok := m.Instance(competitionID)
	if !ok {
		return chat.Message{}, fmt.Errorf("unknown competition %q", competitionID)
	}
	return inst.SubmitChat(sender, agentID, content)
}

// StartSchedulers launches every instance's tick loop.
func (m *Manager) StartSchedulers() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		m.schedulers[id].Start()
	}
}

// StartAutosave schedules periodic snapshot writes. An autosave that is
// still writing when the next fires is skipped.
func (m *Manager) StartAutosave() {
	m.cron = cron.New()
	spec := fmt.Sprintf("@every %dm", m.cfg.Persistence.AutosaveMinutes)
	_, err := m.cron.AddFunc(spec, func() {
		if !m.saving.CompareAndSwap(false, true) {
			m.log.Warn().Msg("previous autosave still in progress, skipping")
			return
		}
		defer m.saving.Store(false)
		m.SaveAll()
	})
	if err != nil {
		m.log.Error().Err(err).Str("spec", spec).Msg("autosave schedule rejected")
		return
	}
	m.cron.Start()
	m.log.Info().Str("spec", spec).Msg("autosave scheduled")
}

// SaveAll flushes a snapshot for every instance. Copies are taken under
// each instance's lock; disk writes happen outside it.
func (m *Manager) SaveAll() {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()

	for _, id := range ids {
		inst, ok := m.Instance(id)
		if !ok {
			continue
		}
		if err := m.store.Save(inst.Snapshot()); err != nil {
			m.log.Error().Err(err).Str("competition", id).Msg("snapshot save failed")
		}
	}
}

// Shutdown stops schedulers and autosave, then flushes final snapshots,
// all bounded by the context deadline. On timeout it returns with whatever
// work completed; the process exits anyway.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.cron != nil {
		m.cron.Stop()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		m.mu.RLock()
		scheds := make([]*Scheduler, 0, len(m.schedulers))
		for _, s := range m.schedulers {
			scheds = append(scheds, s)
		}
		m.mu.RUnlock()

		for _, s := range scheds {
			s.Stop()
		}
		m.SaveAll()
	}()

	select {
	case <-done:
		m.log.Info().Msg("shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
