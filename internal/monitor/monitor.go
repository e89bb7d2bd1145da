// Package monitor polls the configured game servers on a fixed interval,
// keeps their latest state and publishes the outcome of every query.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/db"
	"github.com/energizer-project/sourcequery/internal/events"
	"github.com/energizer-project/sourcequery/internal/protocol"
	"github.com/energizer-project/sourcequery/internal/util"
)

// ErrUnknownTarget is returned for addresses that are not monitored.
var ErrUnknownTarget = errors.New("unknown target")

// Querier runs a single A2S_INFO query.
type Querier interface {
	Query(ctx context.Context, address string) (protocol.InfoResult, error)
}

// SnapshotSaver persists query outcomes.
type SnapshotSaver interface {
	Save(ctx context.Context, snap db.Snapshot) (int64, error)
}

// Options tunes a Monitor. Zero values fall back to defaults.
type Options struct {
	Interval time.Duration
	Workers  int
	Targets  []config.Target

	// SelfTest, when set, is run every SelfTestInterval.
	SelfTest         func(context.Context) error
	SelfTestInterval time.Duration

	// DiskPath is checked for free space every DiskCheckInterval.
	DiskPath          string
	DiskCheckInterval time.Duration
}

// Monitor polls targets with a bounded pool of workers.
type Monitor struct {
	client Querier
	bus    *events.EventBus
	store  SnapshotSaver
	opts   Options
	logger zerolog.Logger

	mu      sync.RWMutex
	targets []config.Target
	states  map[string]*TargetState

	now func() time.Time
}

// New creates a Monitor. store may be nil to skip persistence.
func New(client Querier, bus *events.EventBus, store SnapshotSaver, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	m := &Monitor{
		client: client,
		bus:    bus,
		store:  store,
		opts:   opts,
		logger: util.ComponentLogger("monitor"),
		states: make(map[string]*TargetState),
		now:    time.Now,
	}
	for _, t := range opts.Targets {
		m.AddTarget(t)
	}
	return m
}

// AddTarget starts monitoring t. It reports false if the address is already monitored.
func (m *Monitor) AddTarget(t config.Target) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[t.Address]; exists {
		return false
	}
	if t.Name == "" {
		t.Name = t.Address
	}
	m.targets = append(m.targets, t)
	m.states[t.Address] = &TargetState{Target: t}
	return true
}

// Targets returns the monitored targets in insertion order.
func (m *Monitor) Targets() []config.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]config.Target, len(m.targets))
	copy(out, m.targets)
	return out
}

// States returns a snapshot of every target's state, sorted by name.
func (m *Monitor) States() []TargetState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TargetState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target.Name != out[j].Target.Name {
			return out[i].Target.Name < out[j].Target.Name
		}
		return out[i].Target.Address < out[j].Target.Address
	})
	return out
}

// State returns the state of the target at address.
func (m *Monitor) State(address string) (TargetState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[address]
	if !ok {
		return TargetState{}, false
	}
	return s.clone(), true
}

type check struct {
	name     string
	interval time.Duration
	fn       func(context.Context)
}

// Start runs the poll loop and the auxiliary checks until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	checks := []check{
		{"poll_targets", m.opts.Interval, m.PollOnce},
	}
	if m.opts.SelfTest != nil {
		checks = append(checks, check{"responder_self_test", m.opts.SelfTestInterval, m.checkResponder})
	}
	if m.opts.DiskPath != "" {
		checks = append(checks, check{"disk_utilization", m.opts.DiskCheckInterval, m.checkDiskUtilization})
	}

	var wg sync.WaitGroup
	for _, c := range checks {
		c := c
		if c.interval <= 0 {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(c.interval)
			defer ticker.Stop()

			m.logger.Debug().Str("check", c.name).Msg("running initial check")
			c.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().
		Int("targets", len(m.Targets())).
		Dur("interval", m.opts.Interval).
		Int("workers", m.opts.Workers).
		Msg("monitor started")

	<-ctx.Done()
	wg.Wait()
	m.logger.Info().Msg("monitor stopped")
}

// PollOnce queries every target once, at most Workers at a time, and
// returns when all queries have finished.
func (m *Monitor) PollOnce(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	for _, t := range m.Targets() {
		t := t
		g.Go(func() error {
			m.poll(gctx, t)
			return nil
		})
	}
	g.Wait()
}

// QueryNow runs an ad-hoc query. When address is monitored, the outcome
// updates its state like a scheduled poll.
func (m *Monitor) QueryNow(ctx context.Context, address string) (protocol.InfoResult, error) {
	m.mu.RLock()
	s, monitored := m.states[address]
	var target config.Target
	if monitored {
		target = s.Target
	}
	m.mu.RUnlock()

	if !monitored {
		return m.client.Query(ctx, address)
	}
	return m.poll(ctx, target)
}

// poll queries one target and records the outcome.
func (m *Monitor) poll(ctx context.Context, t config.Target) (protocol.InfoResult, error) {
	info, err := m.client.Query(ctx, t.Address)
	if err != nil && ctx.Err() != nil {
		// Shutting down; not the server's fault.
		return nil, err
	}

	at := m.now()
	if err != nil {
		m.recordFailure(ctx, t, err, at)
		return nil, fmt.Errorf("query %s: %w", t.Address, err)
	}

	m.recordSuccess(ctx, t, protocol.Summarize(info), at)
	return info, nil
}

func (m *Monitor) recordSuccess(ctx context.Context, t config.Target, summary protocol.Summary, at time.Time) {
	m.mu.Lock()
	s, ok := m.states[t.Address]
	if !ok {
		m.mu.Unlock()
		return
	}
	prev := s.recordSuccess(summary, at)
	m.mu.Unlock()

	m.logger.Debug().
		Str("target", t.Name).
		Str("address", t.Address).
		Str("map", summary.Map).
		Int("players", summary.Players).
		Dur("rtt", summary.RTT).
		Msg("query completed")

	m.save(ctx, db.SuccessSnapshot(t.Address, summary, at))
	m.emit(ctx, events.EventQueryCompleted, events.QueryCompletedPayload{
		Target:  t.Name,
		Address: t.Address,
		Info:    summary,
		At:      at,
	})
	if prev != events.TargetStatusOnline {
		m.logger.Info().Str("target", t.Name).Str("address", t.Address).Msg("server online")
		m.emit(ctx, events.EventServerOnline, events.ServerStatePayload{
			Target:   t.Name,
			Address:  t.Address,
			Previous: prev,
			Current:  events.TargetStatusOnline,
		})
	}
}

func (m *Monitor) recordFailure(ctx context.Context, t config.Target, queryErr error, at time.Time) {
	m.mu.Lock()
	s, ok := m.states[t.Address]
	if !ok {
		m.mu.Unlock()
		return
	}
	prev := s.recordFailure(queryErr, at)
	failures := s.ConsecutiveFailures
	m.mu.Unlock()

	m.logger.Warn().
		Err(queryErr).
		Str("target", t.Name).
		Str("address", t.Address).
		Int("consecutive_failures", failures).
		Msg("query failed")

	m.save(ctx, db.FailureSnapshot(t.Address, queryErr, at))
	m.emit(ctx, events.EventQueryFailed, events.QueryFailedPayload{
		Target:              t.Name,
		Address:             t.Address,
		Error:               queryErr.Error(),
		ConsecutiveFailures: failures,
		At:                  at,
	})
	if prev != events.TargetStatusOffline {
		m.logger.Warn().Str("target", t.Name).Str("address", t.Address).Msg("server offline")
		m.emit(ctx, events.EventServerOffline, events.ServerStatePayload{
			Target:   t.Name,
			Address:  t.Address,
			Previous: prev,
			Current:  events.TargetStatusOffline,
		})
	}
}

func (m *Monitor) save(ctx context.Context, snap db.Snapshot) {
	if m.store == nil {
		return
	}
	if _, err := m.store.Save(ctx, snap); err != nil {
		m.logger.Error().Err(err).Str("address", snap.Address).Msg("failed to save snapshot")
	}
}

func (m *Monitor) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(ctx, events.Event{Type: t, Source: "monitor", Payload: payload})
}

// checkResponder runs the responder self-test.
func (m *Monitor) checkResponder(ctx context.Context) {
	if err := m.opts.SelfTest(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn().Err(err).Msg("responder self-test failed")
	}
}

// checkDiskUtilization warns when the history volume is filling up.
func (m *Monitor) checkDiskUtilization(ctx context.Context) {
	usage, err := util.DiskUsage(ctx, m.opts.DiskPath)
	if err != nil {
		m.logger.Warn().Err(err).Msg("disk utilization check failed")
		return
	}

	var event *zerolog.Event
	switch {
	case usage.UsedPercent >= 95:
		event = m.logger.Error()
	case usage.UsedPercent >= 90:
		event = m.logger.Warn()
	default:
		m.logger.Trace().Float64("used_percent", usage.UsedPercent).Msg("disk utilization")
		return
	}

	event.
		Float64("used_percent", usage.UsedPercent).
		Uint64("free_bytes", usage.FreeBytes).
		Str("path", m.opts.DiskPath).
		Msg("history volume almost full")
}
