package monitor

import (
	"time"

	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/events"
	"github.com/energizer-project/sourcequery/internal/protocol"
)

// TargetState is the latest known state of one monitored server.
type TargetState struct {
	Target              config.Target       `json:"target"`
	Status              events.TargetStatus `json:"status"`
	LastInfo            *protocol.Summary   `json:"last_info,omitempty"`
	LastError           string              `json:"last_error,omitempty"`
	LastSeen            time.Time           `json:"last_seen,omitempty"`
	LastChecked         time.Time           `json:"last_checked,omitempty"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	RTT                 time.Duration       `json:"rtt"`
}

// Online reports whether the last query succeeded.
func (s TargetState) Online() bool {
	return s.Status == events.TargetStatusOnline
}

// clone copies s so callers never share the LastInfo pointer.
func (s *TargetState) clone() TargetState {
	out := *s
	if s.LastInfo != nil {
		info := *s.LastInfo
		out.LastInfo = &info
	}
	return out
}

// recordSuccess applies a successful query and returns the previous status.
func (s *TargetState) recordSuccess(summary protocol.Summary, at time.Time) events.TargetStatus {
	prev := s.Status
	s.Status = events.TargetStatusOnline
	s.LastInfo = &summary
	s.LastError = ""
	s.LastSeen = at
	s.LastChecked = at
	s.ConsecutiveFailures = 0
	s.RTT = summary.RTT
	return prev
}

// recordFailure applies a failed query and returns the previous status.
// LastInfo is kept so the last good answer stays visible.
func (s *TargetState) recordFailure(err error, at time.Time) events.TargetStatus {
	prev := s.Status
	s.Status = events.TargetStatusOffline
	s.LastError = err.Error()
	s.LastChecked = at
	s.ConsecutiveFailures++
	return prev
}
