package ewma

import (
	"strconv"
	"testing"

	"github.com/morse-wifi/dcsd/pkg/algo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInitialised(t *testing.T, alpha int) *Algorithm {
	a := New().(*Algorithm)
	err := a.Init(map[string]string{
		"ewma_alpha":           strconv.Itoa(alpha),
		"threshold_percentage": "10",
		"rounds_for_csa":       "2",
	})
	require.NoError(t, err)
	return a
}

func TestInitRejectsOutOfRangeAlpha(t *testing.T) {
	a := New().(*Algorithm)
	err := a.Init(map[string]string{"ewma_alpha": "0", "threshold_percentage": "10", "rounds_for_csa": "1"})
	assert.Error(t, err)

	err = a.Init(map[string]string{"ewma_alpha": "101", "threshold_percentage": "10", "rounds_for_csa": "1"})
	assert.Error(t, err)
}

func TestAlphaHundredReducesToRaw(t *testing.T) {
	a := newInitialised(t, 100)
	channel := &algo.ChannelEntry{FrequencyKHz: 5000}
	a.ProcessMeasurement(algo.Sample{Metric: 42}, channel)
	assert.Equal(t, 42.0, channel.AccumulatedScore)

	a.ProcessMeasurement(algo.Sample{Metric: 7}, channel)
	assert.Equal(t, 7.0, channel.AccumulatedScore)
}

func TestAlphaOneChangesByAtMostOnePercentOfDelta(t *testing.T) {
	a := newInitialised(t, 1)
	channel := &algo.ChannelEntry{FrequencyKHz: 5000}
	a.ProcessMeasurement(algo.Sample{Metric: 100}, channel)
	before := channel.AccumulatedScore

	a.ProcessMeasurement(algo.Sample{Metric: 0}, channel)
	delta := before - channel.AccumulatedScore
	assert.LessOrEqual(t, delta, before/100+1e-9)
}

func TestNoSwitchConvergence(t *testing.T) {
	a := newInitialised(t, 50)
	current := &algo.ChannelEntry{FrequencyKHz: 1000}
	other1 := &algo.ChannelEntry{FrequencyKHz: 2000}
	other2 := &algo.ChannelEntry{FrequencyKHz: 3000}
	scanList := []*algo.ChannelEntry{current, other1, other2}

	var switched *algo.ChannelEntry
	for round := 0; round < 10; round++ {
		a.ProcessMeasurement(algo.Sample{Metric: 80}, current)
		a.ProcessMeasurement(algo.Sample{Metric: 70}, other1)
		a.ProcessMeasurement(algo.Sample{Metric: 70}, other2)
		if c := a.EvaluateChannels(scanList, current); c != nil {
			switched = c
		}
	}

	assert.Nil(t, switched)
	assert.Equal(t, 0, a.roundsWithBetterChannel)
}

func TestDelayedSwitchIssuedOnSecondStreakRound(t *testing.T) {
	a := newInitialised(t, 50)
	current := &algo.ChannelEntry{FrequencyKHz: 1000}
	better := &algo.ChannelEntry{FrequencyKHz: 2000}
	scanList := []*algo.ChannelEntry{current, better}

	var switchRound int
	for round := 1; round <= 5; round++ {
		a.ProcessMeasurement(algo.Sample{Metric: 50}, current)
		a.ProcessMeasurement(algo.Sample{Metric: 90}, better)
		if c := a.EvaluateChannels(scanList, current); c != nil {
			switchRound = round
			break
		}
	}

	assert.Equal(t, 2, switchRound)
}

func TestPostSwitchResetsStreak(t *testing.T) {
	a := newInitialised(t, 50)
	current := &algo.ChannelEntry{FrequencyKHz: 1000}
	better := &algo.ChannelEntry{FrequencyKHz: 2000}
	scanList := []*algo.ChannelEntry{current, better}

	a.ProcessMeasurement(algo.Sample{Metric: 50}, current)
	a.ProcessMeasurement(algo.Sample{Metric: 90}, better)
	a.EvaluateChannels(scanList, current)
	assert.Equal(t, 1, a.roundsWithBetterChannel)

	a.PostSwitch(scanList, better)
	assert.Equal(t, 0, a.roundsWithBetterChannel)
}
