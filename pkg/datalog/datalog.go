// Package datalog persists DCS history to disk: one row per measurement
// at the CSV schema spec.md §4.J/§6 fixes, rotated into a fresh
// timestamped directory each time the daemon starts.
package datalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/morse-wifi/dcsd/pkg/logx"
)

var header = []string{
	"time", "frequency_khz", "bandwidth_mhz", "channel_s1g", "metric",
	"accumulated_score", "rounds_as_best_for_channel", "current_channel",
}

// Record is one measurement row (spec.md §4.J's CSV header).
type Record struct {
	Time                   time.Time
	FrequencyKHz           uint32
	BandwidthMHz           int
	ChannelS1G             int
	Metric                 uint8
	AccumulatedScore       uint32
	RoundsAsBestForChannel uint
	CurrentChannelKHz      uint32
}

// Sink accepts persisted records. CSVSink is the one sink spec.md §6
// requires; pkg/telemetry's MQTT publisher implements the same
// interface so the scheduler can fan a record out to both without
// knowing which sinks are enabled.
type Sink interface {
	Write(r Record) error
	Close() error
}

// CSVSink rotates into a new directory per process lifetime and writes
// one CSV file inside it, per spec.md §6's "persisted state" and the
// original's datalog.c rotating-root-dir convention.
type CSVSink struct {
	mu     sync.Mutex
	logger *logx.Logger
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink creates `<rootDir>/<YYYY_MM_DD_hh_mm_ss>/dcs.log` and writes
// the CSV header immediately.
func NewCSVSink(rootDir string, logger *logx.Logger) (*CSVSink, error) {
	return newCSVSinkAt(rootDir, time.Now(), logger)
}

func newCSVSinkAt(rootDir string, now time.Time, logger *logx.Logger) (*CSVSink, error) {
	dir := filepath.Join(rootDir, now.Format("2006_01_02_15_04_05"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("datalog: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "dcs.log")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("datalog: create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("datalog: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("datalog: flush header: %w", err)
	}

	return &CSVSink{logger: logger.WithComponent("datalog.csv"), file: f, writer: w}, nil
}

// Write appends one row and flushes immediately, trading a little
// throughput for a log that survives an unclean shutdown.
func (s *CSVSink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []string{
		r.Time.Format(time.RFC3339),
		strconv.FormatUint(uint64(r.FrequencyKHz), 10),
		strconv.Itoa(r.BandwidthMHz),
		strconv.Itoa(r.ChannelS1G),
		strconv.FormatUint(uint64(r.Metric), 10),
		strconv.FormatUint(uint64(r.AccumulatedScore), 10),
		strconv.FormatUint(uint64(r.RoundsAsBestForChannel), 10),
		strconv.FormatUint(uint64(r.CurrentChannelKHz), 10),
	}

	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("datalog: write row: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// MultiSink fans a record out to every enabled sink, logging (not
// failing) on a per-sink write error so one sink's trouble never blocks
// the scheduler.
type MultiSink struct {
	logger *logx.Logger
	sinks  []Sink
}

// NewMultiSink wraps sinks, skipping nils so callers can pass a
// conditionally-constructed slice directly.
func NewMultiSink(logger *logx.Logger, sinks ...Sink) *MultiSink {
	m := &MultiSink{logger: logger.WithComponent("datalog")}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Write(r Record) error {
	for _, s := range m.sinks {
		if err := s.Write(r); err != nil {
			m.logger.Warn("sink write failed", "error", err)
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			m.logger.Warn("sink close failed", "error", err)
		}
	}
	return nil
}
