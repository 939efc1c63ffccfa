// Package algo defines the pluggable scoring-algorithm contract
// (spec component I) and the shared argmax/threshold helpers common to
// every implementation.
package algo

import "fmt"

// Sample is one measurement fed to an algorithm's ProcessMeasurement.
type Sample struct {
	FrequencyKHz uint32
	Metric       float64
}

// ChannelEntry is one scan-list entry an algorithm tracks scores for.
// Only the fields algorithms read/write are modelled here; the scheduler
// owns the authoritative copy.
type ChannelEntry struct {
	FrequencyKHz     uint32
	BandwidthMHz     int
	ChannelS1G       int
	AccumulatedScore float64
	RoundsAsBest     int
}

// Algorithm is the capability interface every scoring strategy
// implements. All methods except Init are optional in the sense that a
// no-op implementation is valid; Go expresses "optional" as every method
// being part of the interface, with an empty body where a strategy has
// nothing to do.
type Algorithm interface {
	// Init validates config and resets the algorithm's per-run state,
	// returning an error if the configuration is out of range.
	Init(config map[string]string) error

	// Deinit releases any resources held by the algorithm.
	Deinit()

	// ProcessMeasurement folds one sample into the per-channel running
	// score.
	ProcessMeasurement(sample Sample, channel *ChannelEntry)

	// EvaluateChannels runs once per complete scan-list traversal. It
	// returns the channel the algorithm wants to switch to, or nil if no
	// switch should occur this round.
	EvaluateChannels(scanList []*ChannelEntry, current *ChannelEntry) *ChannelEntry

	// PostSwitch notifies the algorithm that the operating channel has
	// changed, so it can reset any accumulator that must not carry state
	// across a switch. scanList is passed alongside newChannel because
	// some algorithms (sample-and-hold) reset every tracked channel's
	// score, not just the one switched to.
	PostSwitch(scanList []*ChannelEntry, newChannel *ChannelEntry)
}

// Threshold computes score·(100+pct)/100, the comparison bar a
// candidate's score must clear to be considered better than score.
func Threshold(score float64, pct float64) float64 {
	return score * (100 + pct) / 100
}

// Argmax selects the scan-list entry with the greatest AccumulatedScore.
// Ties are broken in favour of the candidate whose centre frequency is
// farthest from current's; if current itself is among the tied entries,
// current wins (no switch for its own sake). Returns nil for an empty
// scan list.
func Argmax(scanList []*ChannelEntry, current *ChannelEntry) *ChannelEntry {
	var best *ChannelEntry
	for _, c := range scanList {
		switch {
		case best == nil || c.AccumulatedScore > best.AccumulatedScore:
			best = c
		case c.AccumulatedScore == best.AccumulatedScore:
			best = breakTie(best, c, current)
		}
	}
	return best
}

func breakTie(a, b, current *ChannelEntry) *ChannelEntry {
	if current != nil {
		if a.FrequencyKHz == current.FrequencyKHz {
			return a
		}
		if b.FrequencyKHz == current.FrequencyKHz {
			return b
		}
	}
	if current == nil {
		return a
	}
	distA := distance(a.FrequencyKHz, current.FrequencyKHz)
	distB := distance(b.FrequencyKHz, current.FrequencyKHz)
	if distB > distA {
		return b
	}
	return a
}

func distance(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Registry resolves an algorithm name (configuration key dcs.algo_type)
// to a fresh instance. Mirrors the corpus's tagged-dispatch style for
// pluggable strategies.
type Registry struct {
	constructors map[string]func() Algorithm
}

// NewRegistry creates an empty registry; use Register to populate it.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]func() Algorithm)}
}

// Register associates a name with a constructor. Re-registering a name
// overwrites its constructor.
func (r *Registry) Register(name string, constructor func() Algorithm) {
	r.constructors[name] = constructor
}

// New resolves name to a fresh Algorithm instance.
func (r *Registry) New(name string) (Algorithm, error) {
	constructor, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("algo: unknown algorithm %q", name)
	}
	return constructor(), nil
}
