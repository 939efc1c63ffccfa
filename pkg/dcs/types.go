package dcs

import (
	"time"

	"github.com/morse-wifi/dcsd/pkg/algo"
)

// ChannelDescriptor is immutable after initialisation (spec.md §3).
type ChannelDescriptor struct {
	S1GChannelNumber   uint8
	CentreFrequencyKHz uint32
	BandwidthMHz       int
}

// ChannelMetric is the mutable half of a channel entry.
type ChannelMetric struct {
	AccumulatedScore uint32
	SamplesTaken     uint
	RoundsAsBest     uint
}

// ChannelEntry is one permitted channel: an immutable descriptor plus
// its running metric, and the algorithm's own per-channel score carried
// via algo.ChannelEntry so the scoring algorithms never need to know
// about ChannelDescriptor.
type ChannelEntry struct {
	Descriptor ChannelDescriptor
	Metric     ChannelMetric

	// consecutiveFailures counts toward the 3-strike removal budget
	// (spec.md §4.G). Never applies to the current operating channel.
	consecutiveFailures int

	// algoEntry is the view the scoring algorithm reads and writes.
	// FrequencyKHz mirrors Descriptor.CentreFrequencyKHz so algo.Argmax's
	// tie-break distance math has a stable key independent of dcs
	// internals.
	algoEntry *algo.ChannelEntry
}

// AccumulatedScore exposes the scoring algorithm's running score for
// this channel, for observers (datalog, metrics) outside the algorithm
// itself.
func (c *ChannelEntry) AccumulatedScore() float64 { return c.algoEntry.AccumulatedScore }

// RoundsAsBest exposes how many rounds in total this channel has been
// the scoring algorithm's argmax; the count is never reset.
func (c *ChannelEntry) RoundsAsBest() int { return c.algoEntry.RoundsAsBest }

func newChannelEntry(d ChannelDescriptor) *ChannelEntry {
	return &ChannelEntry{
		Descriptor: d,
		algoEntry: &algo.ChannelEntry{
			FrequencyKHz: d.CentreFrequencyKHz,
			BandwidthMHz: d.BandwidthMHz,
			ChannelS1G:   int(d.S1GChannelNumber),
		},
	}
}

// Sample is one measurement (spec.md §3), produced live by the vendor
// backend or synthesised by the replay path.
type Sample struct {
	CapturedAt   time.Time
	MetricRaw    uint8 // [0,100]
	NoiseRSSI    int8
	ListenTimeUS uint64
	RxTimeUS     uint64
}

// OperatingState is filled in by the scheduler at Init and updated after
// a channel switch; the switch coordinator's notify handler also writes
// Current5GFreqKHz from the re-read STATUS.
type OperatingState struct {
	CurrentChannel   *ChannelEntry
	Current5GFreqKHz uint32
	PrimaryWidthMHz  int // 1 or 2
	Primary1MHzIndex int
	BeaconIntervalTU int
	DTIMPeriod       int
}

// SwitchOutcome is the result of a switch_to call (spec.md §4.H).
type SwitchOutcome int

const (
	SwitchOk SwitchOutcome = iota
	SwitchTimeout
	SwitchRejected
	SwitchMismatch
	SwitchDisabled
)

func (o SwitchOutcome) String() string {
	switch o {
	case SwitchOk:
		return "Ok"
	case SwitchTimeout:
		return "Timeout"
	case SwitchRejected:
		return "Rejected"
	case SwitchMismatch:
		return "Mismatch"
	case SwitchDisabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}
