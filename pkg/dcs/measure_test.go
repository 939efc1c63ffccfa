package dcs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScanContextRendezvous(t *testing.T) {
	sc := newScanContext()
	channel := &ChannelEntry{Descriptor: ChannelDescriptor{CentreFrequencyKHz: 900_000}}
	sc.beginMeasurement(channel)

	go func() {
		time.Sleep(10 * time.Millisecond)
		ok := sc.complete(channel, Sample{MetricRaw: 42})
		assert.True(t, ok)
	}()

	sample, ok := sc.wait(time.Second)
	assert.True(t, ok)
	assert.Equal(t, uint8(42), sample.MetricRaw)
}

func TestScanContextWaitTimesOut(t *testing.T) {
	sc := newScanContext()
	channel := &ChannelEntry{Descriptor: ChannelDescriptor{CentreFrequencyKHz: 900_000}}
	sc.beginMeasurement(channel)

	_, ok := sc.wait(20 * time.Millisecond)
	assert.False(t, ok)
}

func TestScanContextDropsCompletionForWrongChannel(t *testing.T) {
	sc := newScanContext()
	inFlight := &ChannelEntry{Descriptor: ChannelDescriptor{CentreFrequencyKHz: 900_000}}
	other := &ChannelEntry{Descriptor: ChannelDescriptor{CentreFrequencyKHz: 910_000}}
	sc.beginMeasurement(inFlight)

	ok := sc.complete(other, Sample{MetricRaw: 1})
	assert.False(t, ok)
}

func TestScanContextDropsLateCompletionAfterTimeout(t *testing.T) {
	sc := newScanContext()
	channel := &ChannelEntry{Descriptor: ChannelDescriptor{CentreFrequencyKHz: 900_000}}
	sc.beginMeasurement(channel)

	_, ok := sc.wait(10 * time.Millisecond)
	assert.False(t, ok)

	// A completion that arrives after the wait already cleared
	// currentChannelUnderMeasurement must be dropped, not misattributed
	// to the next measurement.
	late := sc.complete(channel, Sample{MetricRaw: 99})
	assert.False(t, late)
}
