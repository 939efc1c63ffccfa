package metrics

import (
	"testing"

	"github.com/morse-wifi/dcsd/pkg/dcs"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAgainstAFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, c)

	// A labelled vec has no series, and so no gathered family, until a
	// label value is first used; give each collector one series.
	c.RecordMeasurement(true)
	c.RecordSwitch(dcs.SwitchOk)
	c.SetChannelState(900_000, 1, 1, true)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(families), 5)
}

func TestNewIsIdempotentAgainstTheSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	// Registering a second collector set against the same registry must
	// reuse the existing collectors, not error with AlreadyRegistered.
	c2, err := New(reg)
	require.NoError(t, err)
	assert.NotNil(t, c2)
}

func TestRecordMeasurementIncrementsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.RecordMeasurement(true)
	c.RecordMeasurement(false)
	c.RecordMeasurement(false)

	assert.Equal(t, 1.0, counterValue(t, c.MeasurementsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, counterValue(t, c.MeasurementsTotal.WithLabelValues("failed")))
}

func TestRecordSwitchLabelsByOutcomeString(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.RecordSwitch(dcs.SwitchOk)
	c.RecordSwitch(dcs.SwitchTimeout)

	assert.Equal(t, 1.0, counterValue(t, c.SwitchesTotal.WithLabelValues("Ok")))
	assert.Equal(t, 1.0, counterValue(t, c.SwitchesTotal.WithLabelValues("Timeout")))
}

func TestSetChannelStateUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.SetChannelState(900_000, 82.5, 3, true)
	c.SetChannelState(910_000, 70.0, 0, false)

	assert.Equal(t, 82.5, gaugeValue(t, c.ChannelScore.WithLabelValues("900000")))
	assert.Equal(t, float64(900_000), gaugeValue(t, c.CurrentChannelKHz))
}

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordMeasurement(true)
		c.RecordSwitch(dcs.SwitchOk)
		c.SetChannelState(1, 1, 1, true)
	})
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
