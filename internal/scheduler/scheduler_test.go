package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/energizer-project/sourcequery/internal/config"
)

type recordingPruner struct {
	cutoffs []time.Time
	err     error
}

func (p *recordingPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, before)
	return 3, p.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNextRunTime(t *testing.T) {
	loc := time.UTC
	tt := map[string]struct {
		now       time.Time
		pruneTime string
		want      time.Time
	}{
		"later today": {
			time.Date(2024, 3, 10, 1, 0, 0, 0, loc), "04:00",
			time.Date(2024, 3, 10, 4, 0, 0, 0, loc),
		},
		"already passed": {
			time.Date(2024, 3, 10, 5, 0, 0, 0, loc), "04:30",
			time.Date(2024, 3, 11, 4, 30, 0, 0, loc),
		},
		"exactly now": {
			time.Date(2024, 3, 10, 4, 0, 0, 0, loc), "04:00",
			time.Date(2024, 3, 11, 4, 0, 0, 0, loc),
		},
		"malformed falls back to 04:00": {
			time.Date(2024, 3, 10, 1, 0, 0, 0, loc), "soon",
			time.Date(2024, 3, 10, 4, 0, 0, 0, loc),
		},
	}

	for name, tc := range tt {
		t.Run(name, func(t *testing.T) {
			s := NewScheduler(config.HistoryConfig{PruneTime: tc.pruneTime}, &recordingPruner{})
			s.now = fixedClock(tc.now)
			assert.Equal(t, tc.want, s.nextRunTime())
		})
	}
}

func TestRunPrune_UsesRetention(t *testing.T) {
	now := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
	p := &recordingPruner{}
	s := NewScheduler(config.HistoryConfig{RetentionDays: 7, PruneTime: "04:00"}, p)
	s.now = fixedClock(now)

	assert.Equal(t, int64(3), s.RunPrune(context.Background()))
	assert.Equal(t, []time.Time{now.AddDate(0, 0, -7)}, p.cutoffs)

	p.err = errors.New("disk full")
	assert.Zero(t, s.RunPrune(context.Background()))
}

func TestStart_PrunesOnStartupAndStops(t *testing.T) {
	p := &recordingPruner{}
	s := NewScheduler(config.HistoryConfig{RetentionDays: 1, PruneTime: "04:00"}, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Len(t, p.cutoffs, 1)
}
