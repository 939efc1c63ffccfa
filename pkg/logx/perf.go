package logx

import (
	"sync"
	"time"
)

// PerformanceLogger tracks timing and success-rate statistics for named
// operations (measurements, switches) and periodically surfaces them
// through the owning Logger.
type PerformanceLogger struct {
	logger *Logger
	mu     sync.Mutex
	stats  map[string]*opStats
}

type opStats struct {
	count      int64
	errors     int64
	total      time.Duration
	min        time.Duration
	max        time.Duration
	lastUpdate time.Time
}

// NewPerformanceLogger creates a performance logger reporting through the
// given Logger.
func NewPerformanceLogger(logger *Logger) *PerformanceLogger {
	return &PerformanceLogger{
		logger: logger,
		stats:  make(map[string]*opStats),
	}
}

// Track times a single operation and records the outcome. Call the
// returned function when the operation completes, passing any error.
func (p *PerformanceLogger) Track(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		p.record(op, time.Since(start), err)
	}
}

func (p *PerformanceLogger) record(op string, d time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stats[op]
	if !ok {
		s = &opStats{min: d, max: d}
		p.stats[op] = s
	}
	s.count++
	s.total += d
	if d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.lastUpdate = time.Now()
	if err != nil {
		s.errors++
	}
}

// Snapshot returns the average duration and success rate recorded for an
// operation so far.
func (p *PerformanceLogger) Snapshot(op string) (avg time.Duration, successRate float64, count int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stats[op]
	if !ok || s.count == 0 {
		return 0, 1, 0
	}
	avg = s.total / time.Duration(s.count)
	successRate = 1 - float64(s.errors)/float64(s.count)
	return avg, successRate, s.count
}

// LogSummary emits a single log line per tracked operation with its
// accumulated statistics. Intended to be called on a slow timer, not per
// operation.
func (p *PerformanceLogger) LogSummary() {
	p.mu.Lock()
	snapshot := make(map[string]opStats, len(p.stats))
	for op, s := range p.stats {
		snapshot[op] = *s
	}
	p.mu.Unlock()

	for op, s := range snapshot {
		if s.count == 0 {
			continue
		}
		p.logger.Debug("performance summary",
			"op", op,
			"count", s.count,
			"errors", s.errors,
			"avg_ms", (s.total / time.Duration(s.count)).Milliseconds(),
			"max_ms", s.max.Milliseconds(),
			"min_ms", s.min.Milliseconds(),
		)
	}
}
