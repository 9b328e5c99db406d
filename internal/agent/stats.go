package agent

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/query"
)

// successAlpha is the EWMA weight given to the newest outcome.
const successAlpha = 0.1

// Outcome labels used by stats and metrics.
const (
	LabelSuccess     = "success"
	LabelFailure     = "failure"
	LabelTimeout     = "timeout"
	LabelUnsupported = "unsupported"
)

// Label classifies a task error.
func Label(err error) string {
	switch {
	case err == nil:
		return LabelSuccess
	case errors.GetCode(err) == errors.ErrCodeAgentTimeout:
		return LabelTimeout
	case errors.GetCode(err) == errors.ErrCodeUnsupportedModality:
		return LabelUnsupported
	default:
		return LabelFailure
	}
}

// capabilityStats holds lock-free counters for one modality.
type capabilityStats struct {
	submitted    atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
	timedOut     atomic.Int64
	totalLatency atomic.Duration
	successRate  *atomic.Float64
	lastRunNanos atomic.Int64
}

// record updates the counters for one resolved task.
func (s *capabilityStats) record(err error, latency time.Duration, at time.Time) {
	outcome := 0.0
	switch Label(err) {
	case LabelSuccess:
		s.succeeded.Inc()
		outcome = 1
	case LabelTimeout:
		s.timedOut.Inc()
	default:
		s.failed.Inc()
	}
	s.totalLatency.Add(latency)
	s.lastRunNanos.Store(at.UnixNano())

	for {
		old := s.successRate.Load()
		next := old*(1-successAlpha) + outcome*successAlpha
		if s.successRate.CAS(old, next) {
			return
		}
	}
}

// StatsSnapshot is a point-in-time view of one modality's agent.
type StatsSnapshot struct {
	Modality    query.Modality `json:"modality"`
	Capability  string         `json:"capability"`
	Status      string         `json:"status"`
	Submitted   int64          `json:"submitted"`
	Succeeded   int64          `json:"succeeded"`
	Failed      int64          `json:"failed"`
	TimedOut    int64          `json:"timed_out"`
	AvgLatency  time.Duration  `json:"-"`
	AvgLatencyS float64        `json:"avg_response_time"`
	SuccessRate float64        `json:"success_rate"`
	LastRun     *time.Time     `json:"last_run,omitempty"`
}

// Stats tracks per-modality agent statistics.
type Stats struct {
	mu      sync.RWMutex
	entries map[query.Modality]*capabilityStats
}

func newStats() *Stats {
	return &Stats{entries: make(map[query.Modality]*capabilityStats)}
}

func (s *Stats) get(m query.Modality) *capabilityStats {
	s.mu.RLock()
	cs, ok := s.entries[m]
	s.mu.RUnlock()
	if ok {
		return cs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok = s.entries[m]; ok {
		return cs
	}
	cs = &capabilityStats{successRate: atomic.NewFloat64(1.0)}
	s.entries[m] = cs
	return cs
}

// Snapshot returns one entry per modality with a registered capability, in
// canonical order. Modalities without a capability are reported as disabled.
func (s *Stats) Snapshot(caps Capabilities) []StatsSnapshot {
	out := make([]StatsSnapshot, 0, len(query.AllModalities()))
	for _, m := range query.AllModalities() {
		snap := StatsSnapshot{Modality: m, Status: "disabled", SuccessRate: 1.0}
		if capability, err := caps.For(m); err == nil {
			snap.Capability = capability.Name()
			snap.Status = "active"
		}

		s.mu.RLock()
		cs, ok := s.entries[m]
		s.mu.RUnlock()
		if ok {
			snap.Submitted = cs.submitted.Load()
			snap.Succeeded = cs.succeeded.Load()
			snap.Failed = cs.failed.Load()
			snap.TimedOut = cs.timedOut.Load()
			snap.SuccessRate = cs.successRate.Load()
			if done := snap.Succeeded + snap.Failed + snap.TimedOut; done > 0 {
				snap.AvgLatency = cs.totalLatency.Load() / time.Duration(done)
				snap.AvgLatencyS = snap.AvgLatency.Seconds()
			}
			if nanos := cs.lastRunNanos.Load(); nanos != 0 {
				last := time.Unix(0, nanos)
				snap.LastRun = &last
			}
		}
		out = append(out, snap)
	}
	return out
}
