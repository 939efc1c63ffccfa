// Package ewma implements the exponentially-weighted moving-average
// scoring algorithm (spec.md §4.I.1).
package ewma

import (
	"fmt"
	"strconv"

	"github.com/morse-wifi/dcsd/pkg/algo"
)

const initialScore = 100.0

// Config holds the algorithm's configuration keys
// (dcs.ewma.ewma_alpha, dcs.ewma.threshold_percentage,
// dcs.ewma.rounds_for_csa).
type Config struct {
	Alpha               int
	ThresholdPercentage float64
	RoundsForCSA        int
}

// Algorithm implements algo.Algorithm. The EWMA score lives in
// algo.ChannelEntry.AccumulatedScore; the auxiliary map keyed by
// frequency only records which channels have received their first
// sample.
type Algorithm struct {
	config Config

	roundsWithBetterChannel int
	initialised             map[uint32]bool
}

// New constructs an uninitialised EWMA algorithm; call Init before use.
func New() algo.Algorithm {
	return &Algorithm{initialised: make(map[uint32]bool)}
}

func (a *Algorithm) Init(config map[string]string) error {
	alpha, err := parseIntInRange(config, "ewma_alpha", 1, 100)
	if err != nil {
		return err
	}
	pct, err := parseFloat(config, "threshold_percentage")
	if err != nil {
		return err
	}
	rounds, err := parseIntMin(config, "rounds_for_csa", 1)
	if err != nil {
		return err
	}

	a.config = Config{Alpha: alpha, ThresholdPercentage: pct, RoundsForCSA: rounds}
	a.roundsWithBetterChannel = 0
	a.initialised = make(map[uint32]bool)
	return nil
}

func (a *Algorithm) Deinit() {}

// ProcessMeasurement folds sample.Metric into channel's EWMA score:
// score ← (α·raw + (100−α)·score) / 100. The first measurement for a
// channel seeds score at 100 before folding, per spec.md §4.I.1.
func (a *Algorithm) ProcessMeasurement(sample algo.Sample, channel *algo.ChannelEntry) {
	if !a.initialised[channel.FrequencyKHz] {
		channel.AccumulatedScore = initialScore
		a.initialised[channel.FrequencyKHz] = true
	}
	alpha := float64(a.config.Alpha)
	channel.AccumulatedScore = (alpha*sample.Metric + (100-alpha)*channel.AccumulatedScore) / 100
}

// EvaluateChannels implements the per-round EWMA decision: track
// consecutive rounds where the argmax beats the current channel's
// threshold, and return the argmax once that streak reaches
// RoundsForCSA.
func (a *Algorithm) EvaluateChannels(scanList []*algo.ChannelEntry, current *algo.ChannelEntry) *algo.ChannelEntry {
	best := algo.Argmax(scanList, current)
	if best == nil {
		return nil
	}
	best.RoundsAsBest++

	switch {
	case best.FrequencyKHz == current.FrequencyKHz:
		a.roundsWithBetterChannel = 0
	case best.AccumulatedScore > algo.Threshold(current.AccumulatedScore, a.config.ThresholdPercentage):
		a.roundsWithBetterChannel++
	}

	if a.roundsWithBetterChannel >= a.config.RoundsForCSA {
		return best
	}
	return nil
}

// PostSwitch resets the "better in a row" streak.
func (a *Algorithm) PostSwitch(scanList []*algo.ChannelEntry, newChannel *algo.ChannelEntry) {
	a.roundsWithBetterChannel = 0
}

func parseIntInRange(config map[string]string, key string, lo, hi int) (int, error) {
	v, err := parseInt(config, key)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("ewma: %s=%d out of range [%d,%d]", key, v, lo, hi)
	}
	return v, nil
}

func parseIntMin(config map[string]string, key string, min int) (int, error) {
	v, err := parseInt(config, key)
	if err != nil {
		return 0, err
	}
	if v < min {
		return 0, fmt.Errorf("ewma: %s=%d below minimum %d", key, v, min)
	}
	return v, nil
}

func parseInt(config map[string]string, key string) (int, error) {
	raw, ok := config[key]
	if !ok {
		return 0, fmt.Errorf("ewma: missing required config key %q", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("ewma: %s: %w", key, err)
	}
	return v, nil
}

func parseFloat(config map[string]string, key string) (float64, error) {
	raw, ok := config[key]
	if !ok {
		return 0, fmt.Errorf("ewma: missing required config key %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ewma: %s: %w", key, err)
	}
	return v, nil
}
