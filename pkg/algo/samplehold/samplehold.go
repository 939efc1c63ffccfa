// Package samplehold implements the sample-and-hold scoring algorithm
// (spec.md §4.I.2): scores accumulate across rounds_for_eval rounds and
// are quantised — compared and reset — only at evaluation boundaries.
package samplehold

import (
	"fmt"
	"strconv"

	"github.com/morse-wifi/dcsd/pkg/algo"
)

// Config holds dcs.sample_and_hold.{rounds_for_eval,threshold_percentage}.
type Config struct {
	RoundsForEval       int
	ThresholdPercentage float64
}

// Algorithm implements algo.Algorithm.
type Algorithm struct {
	config       Config
	numFullScans int
}

// New constructs an uninitialised sample-and-hold algorithm; call Init
// before use.
func New() algo.Algorithm {
	return &Algorithm{}
}

func (a *Algorithm) Init(config map[string]string) error {
	rounds, err := parseIntMin(config, "rounds_for_eval", 1)
	if err != nil {
		return err
	}
	pct, err := parseFloat(config, "threshold_percentage")
	if err != nil {
		return err
	}
	a.config = Config{RoundsForEval: rounds, ThresholdPercentage: pct}
	a.numFullScans = 0
	return nil
}

func (a *Algorithm) Deinit() {}

// ProcessMeasurement accumulates the raw metric; quantisation happens
// only at round boundaries in EvaluateChannels.
func (a *Algorithm) ProcessMeasurement(sample algo.Sample, channel *algo.ChannelEntry) {
	channel.AccumulatedScore += sample.Metric
}

// EvaluateChannels increments the scan counter every round but only
// compares and resets scores every RoundsForEval rounds — between
// boundaries it returns nil regardless of the accumulated scores.
func (a *Algorithm) EvaluateChannels(scanList []*algo.ChannelEntry, current *algo.ChannelEntry) *algo.ChannelEntry {
	a.numFullScans++
	best := algo.Argmax(scanList, current)
	if best != nil {
		best.RoundsAsBest++
	}

	if a.numFullScans%a.config.RoundsForEval != 0 {
		return nil
	}

	defer a.resetAll(scanList)

	if best == nil {
		return nil
	}
	if best.AccumulatedScore > algo.Threshold(current.AccumulatedScore, a.config.ThresholdPercentage) {
		return best
	}
	return nil
}

func (a *Algorithm) resetAll(scanList []*algo.ChannelEntry) {
	for _, c := range scanList {
		c.AccumulatedScore = 0
	}
}

// PostSwitch resets all accumulated scores, same as an evaluation
// boundary's reset.
func (a *Algorithm) PostSwitch(scanList []*algo.ChannelEntry, newChannel *algo.ChannelEntry) {
	a.resetAll(scanList)
}

func parseIntMin(config map[string]string, key string, min int) (int, error) {
	raw, ok := config[key]
	if !ok {
		return 0, fmt.Errorf("samplehold: missing required config key %q", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("samplehold: %s: %w", key, err)
	}
	if v < min {
		return 0, fmt.Errorf("samplehold: %s=%d below minimum %d", key, v, min)
	}
	return v, nil
}

func parseFloat(config map[string]string, key string) (float64, error) {
	raw, ok := config[key]
	if !ok {
		return 0, fmt.Errorf("samplehold: missing required config key %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("samplehold: %s: %w", key, err)
	}
	return v, nil
}
