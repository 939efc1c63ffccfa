// Package replay implements the test/replay path (spec.md §4.J): a
// Measurer that serves recorded CSV samples instead of issuing live
// off-channel scans, so the scheduler's state machine can be exercised
// against a deterministic recording.
package replay

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/morse-wifi/dcsd/pkg/dcs"
)

// ErrExhausted is dcs.ErrSourceExhausted under a replay-specific alias,
// returned by Measure once every recorded sample across every channel
// has been consumed.
var ErrExhausted = dcs.ErrSourceExhausted

var csvHeader = []string{
	"time", "frequency_khz", "bandwidth_mhz", "channel_s1g", "metric",
	"accumulated_score", "rounds_as_best_for_channel", "current_channel",
}

// Row is one parsed line of the recording.
type Row struct {
	Time                   string
	FrequencyKHz           uint32
	BandwidthMHz           int
	ChannelS1G             int
	Metric                 uint8
	AccumulatedScore       uint32
	RoundsAsBestForChannel uint
	CurrentChannel         uint32
}

// Source replays a recorded CSV as a dcs.Measurer: each row is queued
// onto a per-frequency FIFO, and a measurement request pops the head of
// the queue for the requested channel's frequency.
type Source struct {
	queues         map[uint32][]Row
	remaining      int
	initialCurrent uint32
}

// Load reads path and builds a Source. The first row's current_channel
// column is recorded and reported by InitialCurrentChannelKHz; the
// Source does not set the scheduler's operating channel from it.
func Load(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()

	return load(f)
}

func load(r io.Reader) (*Source, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("replay: read header: %w", err)
	}
	if !headerMatches(header) {
		return nil, fmt.Errorf("replay: unexpected header %v", header)
	}

	src := &Source{queues: make(map[uint32][]Row)}
	first := true

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay: read row: %w", err)
		}

		row, err := parseRow(fields)
		if err != nil {
			return nil, err
		}

		if first {
			src.initialCurrent = row.CurrentChannel
			first = false
		}

		src.queues[row.FrequencyKHz] = append(src.queues[row.FrequencyKHz], row)
		src.remaining++
	}

	if first {
		return nil, fmt.Errorf("replay: recording has no rows")
	}

	return src, nil
}

func headerMatches(got []string) bool {
	if len(got) != len(csvHeader) {
		return false
	}
	for i, h := range csvHeader {
		if got[i] != h {
			return false
		}
	}
	return true
}

func parseRow(fields []string) (Row, error) {
	if len(fields) != len(csvHeader) {
		return Row{}, fmt.Errorf("replay: row has %d fields, want %d", len(fields), len(csvHeader))
	}

	freq, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Row{}, fmt.Errorf("replay: frequency_khz: %w", err)
	}
	bw, err := strconv.Atoi(fields[2])
	if err != nil {
		return Row{}, fmt.Errorf("replay: bandwidth_mhz: %w", err)
	}
	s1g, err := strconv.Atoi(fields[3])
	if err != nil {
		return Row{}, fmt.Errorf("replay: channel_s1g: %w", err)
	}
	metric, err := strconv.ParseUint(fields[4], 10, 8)
	if err != nil {
		return Row{}, fmt.Errorf("replay: metric: %w", err)
	}
	accum, err := strconv.ParseUint(fields[5], 10, 32)
	if err != nil {
		return Row{}, fmt.Errorf("replay: accumulated_score: %w", err)
	}
	rounds, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("replay: rounds_as_best_for_channel: %w", err)
	}
	current, err := strconv.ParseUint(fields[7], 10, 32)
	if err != nil {
		return Row{}, fmt.Errorf("replay: current_channel: %w", err)
	}

	return Row{
		Time:                   fields[0],
		FrequencyKHz:           uint32(freq),
		BandwidthMHz:           bw,
		ChannelS1G:             s1g,
		Metric:                 uint8(metric),
		AccumulatedScore:       uint32(accum),
		RoundsAsBestForChannel: uint(rounds),
		CurrentChannel:         uint32(current),
	}, nil
}

// InitialCurrentChannelKHz is the current_channel column of the
// recording's first row.
func (s *Source) InitialCurrentChannelKHz() uint32 {
	return s.initialCurrent
}

// Measure implements dcs.Measurer by popping the head of the queue for
// channel's frequency. A channel whose own queue has simply run dry
// ahead of the others is an ordinary measurement gap, not exhaustion:
// it flows through the scheduler's normal 3-strike retry/removal path.
// ErrExhausted is returned only once s.remaining reaches zero, i.e. the
// very last sample across every channel has been consumed (spec.md
// §4.J: "when the very last sample across all channels is consumed,
// the scheduler must halt cleanly").
func (s *Source) Measure(_ context.Context, channel *dcs.ChannelEntry) (dcs.Sample, error) {
	freq := channel.Descriptor.CentreFrequencyKHz
	queue := s.queues[freq]
	if len(queue) == 0 {
		if s.remaining == 0 {
			return dcs.Sample{}, fmt.Errorf("replay: recording exhausted: %w", ErrExhausted)
		}
		return dcs.Sample{}, fmt.Errorf("replay: no recorded sample left for %d kHz: %w", freq, dcs.ErrMeasurementFailure)
	}

	row := queue[0]
	s.queues[freq] = queue[1:]
	s.remaining--

	return dcs.Sample{MetricRaw: row.Metric}, nil
}

// Exhausted reports whether every recorded sample has been consumed.
func (s *Source) Exhausted() bool {
	return s.remaining == 0
}
