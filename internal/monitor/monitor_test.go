package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/db"
	"github.com/energizer-project/sourcequery/internal/events"
	"github.com/energizer-project/sourcequery/internal/network"
	"github.com/energizer-project/sourcequery/internal/protocol"
)

var errUnreachable = errors.New("unreachable")

// fakeQuerier answers from a per-address table.
type fakeQuerier struct {
	mu      sync.Mutex
	results map[string]protocol.InfoResult
	calls   atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
}

func (f *fakeQuerier) set(address string, info protocol.InfoResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[address] = info
}

func (f *fakeQuerier) Query(ctx context.Context, address string) (protocol.InfoResult, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.results[address]; ok && info != nil {
		return info, nil
	}
	return nil, errUnreachable
}

type memStore struct {
	mu    sync.Mutex
	snaps []db.Snapshot
}

func (s *memStore) Save(_ context.Context, snap db.Snapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return int64(len(s.snaps)), nil
}

func sourceInfo(name string, players uint8) *protocol.SourceInfo {
	return &protocol.SourceInfo{
		Name:          name,
		Map:           "cp_badlands",
		Folder:        "tf",
		Game:          "Team Fortress",
		Players:       players,
		MaxPlayers:    24,
		RoundTripTime: 20 * time.Millisecond,
	}
}

func collect(bus *events.EventBus) func() []events.EventType {
	var mu sync.Mutex
	var seen []events.EventType
	bus.Subscribe("test", func(_ context.Context, e events.Event) error {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		return nil
	}, events.EventQueryCompleted, events.EventQueryFailed, events.EventServerOnline, events.EventServerOffline)

	return func() []events.EventType {
		bus.Wait()
		mu.Lock()
		defer mu.Unlock()
		out := seen
		seen = nil
		return out
	}
}

func TestMonitor_Transitions(t *testing.T) {
	q := &fakeQuerier{results: map[string]protocol.InfoResult{}}
	q.set("10.0.0.1:27015", sourceInfo("alpha", 3))

	bus := events.NewEventBus()
	defer bus.Stop()
	drain := collect(bus)
	store := &memStore{}

	m := New(q, bus, store, Options{Targets: []config.Target{{Name: "alpha", Address: "10.0.0.1:27015"}}})
	ctx := context.Background()

	m.PollOnce(ctx)
	assert.ElementsMatch(t, []events.EventType{events.EventQueryCompleted, events.EventServerOnline}, drain())

	state, ok := m.State("10.0.0.1:27015")
	require.True(t, ok)
	assert.True(t, state.Online())
	require.NotNil(t, state.LastInfo)
	assert.Equal(t, 3, state.LastInfo.Players)
	assert.Equal(t, 20*time.Millisecond, state.RTT)

	// Staying online only reports the query.
	m.PollOnce(ctx)
	assert.Equal(t, []events.EventType{events.EventQueryCompleted}, drain())

	q.set("10.0.0.1:27015", nil)
	m.PollOnce(ctx)
	m.PollOnce(ctx)
	assert.ElementsMatch(t, []events.EventType{
		events.EventQueryFailed, events.EventServerOffline, events.EventQueryFailed,
	}, drain())

	state, _ = m.State("10.0.0.1:27015")
	assert.False(t, state.Online())
	assert.Equal(t, 2, state.ConsecutiveFailures)
	assert.Equal(t, errUnreachable.Error(), state.LastError)
	require.NotNil(t, state.LastInfo, "last good answer is kept")

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.snaps, 4)
	assert.True(t, store.snaps[0].Online)
	assert.False(t, store.snaps[3].Online)
}

func TestMonitor_WorkerLimit(t *testing.T) {
	q := &fakeQuerier{results: map[string]protocol.InfoResult{}, delay: 20 * time.Millisecond}
	var targets []config.Target
	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1", "10.0.0.4:1", "10.0.0.5:1", "10.0.0.6:1"} {
		q.set(addr, sourceInfo(addr, 0))
		targets = append(targets, config.Target{Address: addr})
	}

	m := New(q, nil, nil, Options{Workers: 2, Targets: targets})
	m.PollOnce(context.Background())

	assert.Equal(t, int32(6), q.calls.Load())
	assert.LessOrEqual(t, q.peak.Load(), int32(2))
	for _, s := range m.States() {
		assert.True(t, s.Online(), s.Target.Address)
		assert.Equal(t, s.Target.Address, s.Target.Name)
	}
}

func TestMonitor_QueryNow(t *testing.T) {
	q := &fakeQuerier{results: map[string]protocol.InfoResult{}}
	q.set("10.0.0.1:27015", sourceInfo("alpha", 1))
	q.set("10.0.0.9:27015", sourceInfo("adhoc", 1))

	m := New(q, nil, nil, Options{Targets: []config.Target{{Name: "alpha", Address: "10.0.0.1:27015"}}})

	info, err := m.QueryNow(context.Background(), "10.0.0.9:27015")
	require.NoError(t, err)
	assert.Equal(t, "adhoc", info.(*protocol.SourceInfo).Name)
	_, tracked := m.State("10.0.0.9:27015")
	assert.False(t, tracked)

	_, err = m.QueryNow(context.Background(), "10.0.0.1:27015")
	require.NoError(t, err)
	state, _ := m.State("10.0.0.1:27015")
	assert.True(t, state.Online())
}

func TestMonitor_AddTargetDeduplicates(t *testing.T) {
	m := New(&fakeQuerier{results: map[string]protocol.InfoResult{}}, nil, nil, Options{})
	assert.True(t, m.AddTarget(config.Target{Name: "b", Address: "10.0.0.2:27015"}))
	assert.True(t, m.AddTarget(config.Target{Name: "a", Address: "10.0.0.1:27015"}))
	assert.False(t, m.AddTarget(config.Target{Name: "c", Address: "10.0.0.1:27015"}))

	states := m.States()
	require.Len(t, states, 2)
	assert.Equal(t, "a", states[0].Target.Name)
	assert.Equal(t, events.TargetStatusUnknown, states[0].Status)
}

func TestMonitor_AgainstResponder(t *testing.T) {
	want := sourceInfo("live", 7)
	r := network.NewResponder("127.0.0.1:0", func() protocol.InfoResult { return want })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-r.Ready():
	case err := <-done:
		t.Fatalf("responder failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("responder did not start")
	}

	addr := r.Addr().String()
	m := New(network.NewClient(2*time.Second, 1), nil, nil, Options{
		Targets: []config.Target{{Name: "local", Address: addr}},
	})
	m.PollOnce(ctx)

	state, ok := m.State(addr)
	require.True(t, ok)
	require.True(t, state.Online(), state.LastError)
	assert.Equal(t, "live", state.LastInfo.Name)
	assert.Equal(t, 7, state.LastInfo.Players)
	assert.Equal(t, protocol.EngineSource, state.LastInfo.Engine)
}

func TestMonitor_StartStops(t *testing.T) {
	q := &fakeQuerier{results: map[string]protocol.InfoResult{}}
	q.set("10.0.0.1:27015", sourceInfo("alpha", 0))

	var selfTests atomic.Int32
	m := New(q, nil, nil, Options{
		Interval: 10 * time.Millisecond,
		Targets:  []config.Target{{Address: "10.0.0.1:27015"}},
		SelfTest: func(context.Context) error {
			selfTests.Add(1)
			return nil
		},
		SelfTestInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	m.Start(ctx)

	assert.GreaterOrEqual(t, q.calls.Load(), int32(2))
	assert.GreaterOrEqual(t, selfTests.Load(), int32(1))
}
