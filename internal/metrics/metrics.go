// Package metrics records gate outcomes as Prometheus counters.
package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
)

const namespace = "filegate"

// Recorder counts optimistic hits, pessimistic fallbacks, upgrades, lock
// timeouts, global lock outcomes and I/O failures. A nil *Recorder is a
// valid no-op recorder.
type Recorder struct {
	registry *prometheus.Registry

	optimisticReads   *prometheus.CounterVec
	optimisticRetries prometheus.Counter
	pessimisticReads  prometheus.Counter
	upgrades          *prometheus.CounterVec
	lockTimeouts      *prometheus.CounterVec
	globalLocks       *prometheus.CounterVec
	ioFailures        *prometheus.CounterVec
}

// New creates a Recorder registered on its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		optimisticReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_reads_total",
			Help:      "Read operations by optimistic outcome (hit or exhausted).",
		}, []string{"result"}),
		optimisticRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_retries_total",
			Help:      "Optimistic read attempts that failed validation.",
		}),
		pessimisticReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pessimistic_reads_total",
			Help:      "Reads served under the blocking read lock.",
		}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stamp_upgrades_total",
			Help:      "Stamp to write lock conversions by result.",
		}, []string{"result"}),
		lockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "In-process lock waits that expired.",
		}, []string{"mode"}),
		globalLocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "global_lock_attempts_total",
			Help:      "Cross-process lock attempts by mode and result.",
		}, []string{"mode", "result"}),
		ioFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_failures_total",
			Help:      "Byte stream failures by operation.",
		}, []string{"op"}),
	}

	r.registry.MustRegister(
		r.optimisticReads,
		r.optimisticRetries,
		r.pessimisticReads,
		r.upgrades,
		r.lockTimeouts,
		r.globalLocks,
		r.ioFailures,
	)
	return r
}

// Registry exposes the registry for HTTP handlers or custom gatherers.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// OptimisticRead records one read operation's optimistic phase.
func (r *Recorder) OptimisticRead(failedAttempts int, hit bool) {
	if r == nil {
		return
	}
	if failedAttempts > 0 {
		r.optimisticRetries.Add(float64(failedAttempts))
	}
	if hit {
		r.optimisticReads.WithLabelValues("hit").Inc()
	} else {
		r.optimisticReads.WithLabelValues("exhausted").Inc()
	}
}

// PessimisticRead records a read served under the read lock.
func (r *Recorder) PessimisticRead() {
	if r == nil {
		return
	}
	r.pessimisticReads.Inc()
}

// Upgrade records a TryUpgrade outcome.
func (r *Recorder) Upgrade(ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.upgrades.WithLabelValues("converted").Inc()
	} else {
		r.upgrades.WithLabelValues("fallback").Inc()
	}
}

// LockTimeout records an expired in-process lock wait.
func (r *Recorder) LockTimeout(mode gerrors.LockMode) {
	if r == nil {
		return
	}
	r.lockTimeouts.WithLabelValues(string(mode)).Inc()
}

// GlobalLockAcquired records a successful native lock attempt.
func (r *Recorder) GlobalLockAcquired(mode gerrors.LockMode) {
	if r == nil {
		return
	}
	r.globalLocks.WithLabelValues(string(mode), "acquired").Inc()
}

// GlobalLockContended records a native lock attempt that found contention.
func (r *Recorder) GlobalLockContended(mode gerrors.LockMode) {
	if r == nil {
		return
	}
	r.globalLocks.WithLabelValues(string(mode), "contended").Inc()
}

// IOFailure records a byte stream failure.
func (r *Recorder) IOFailure(op gerrors.IOOp) {
	if r == nil {
		return
	}
	r.ioFailures.WithLabelValues(string(op)).Inc()
}

// Sample is one counter value flattened for display.
type Sample struct {
	Name  string  `yaml:"name" json:"name"`
	Value float64 `yaml:"value" json:"value"`
}

// Snapshot gathers every non-zero counter, sorted by name. Labels are folded
// into the name as name{k=v,...}.
func (r *Recorder) Snapshot() ([]Sample, error) {
	if r == nil {
		return nil, nil
	}

	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			if v == 0 {
				continue
			}
			name := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				parts := make([]string, 0, len(labels))
				for _, lp := range labels {
					parts = append(parts, lp.GetName()+"="+lp.GetValue())
				}
				name += "{" + strings.Join(parts, ",") + "}"
			}
			samples = append(samples, Sample{Name: name, Value: v})
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}

// Value returns the value of the sample named name, or 0.
func Value(samples []Sample, name string) float64 {
	for _, s := range samples {
		if s.Name == name {
			return s.Value
		}
	}
	return 0
}
