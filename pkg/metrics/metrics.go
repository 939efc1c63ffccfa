// Package metrics bundles the Prometheus collectors dcsd exposes:
// measurement/switch counters and per-channel score gauges, plus an
// optional promhttp listener.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morse-wifi/dcsd/pkg/dcs"
)

// Collector bundles dcsd's Prometheus metrics and provides helpers to
// update them from scheduler and switch-coordinator events.
type Collector struct {
	gatherer prometheus.Gatherer

	MeasurementsTotal   *prometheus.CounterVec
	SwitchesTotal       *prometheus.CounterVec
	CurrentChannelKHz   prometheus.Gauge
	ChannelScore        *prometheus.GaugeVec
	ChannelRoundsAsBest *prometheus.GaugeVec
}

// New registers dcsd's metrics against reg, defaulting to the global
// Prometheus registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	measurements, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcs_measurements_total",
		Help: "Total channel measurements taken, labeled by outcome (ok, failed).",
	}, []string{"outcome"}), "dcs_measurements_total")
	if err != nil {
		return nil, err
	}

	switches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcs_switches_total",
		Help: "Total channel-switch attempts, labeled by outcome (Ok, Timeout, Rejected, Mismatch, Disabled).",
	}, []string{"outcome"}), "dcs_switches_total")
	if err != nil {
		return nil, err
	}

	currentChannel, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dcs_current_channel_khz",
		Help: "Centre frequency, in kHz, of the AP's current operating channel.",
	}), "dcs_current_channel_khz")
	if err != nil {
		return nil, err
	}

	score, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dcs_channel_score",
		Help: "Current scoring-algorithm score per scanned channel.",
	}, []string{"frequency_khz"}), "dcs_channel_score")
	if err != nil {
		return nil, err
	}

	rounds, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dcs_channel_rounds_as_best",
		Help: "Total evaluation rounds each scanned channel has been the argmax.",
	}, []string{"frequency_khz"}), "dcs_channel_rounds_as_best")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		MeasurementsTotal:   measurements,
		SwitchesTotal:       switches,
		CurrentChannelKHz:   currentChannel,
		ChannelScore:        score,
		ChannelRoundsAsBest: rounds,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordMeasurement increments the measurement counter for the given
// outcome ("ok" or "failed").
func (c *Collector) RecordMeasurement(ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	c.MeasurementsTotal.WithLabelValues(outcome).Inc()
}

// RecordSwitch increments the switch counter for outcome.
func (c *Collector) RecordSwitch(outcome dcs.SwitchOutcome) {
	if c == nil {
		return
	}
	c.SwitchesTotal.WithLabelValues(outcome.String()).Inc()
}

// SetChannelState mirrors one scanned channel's score and rounds-as-best
// into their gauges, and the AP's current channel into CurrentChannelKHz
// when isCurrent is true.
func (c *Collector) SetChannelState(frequencyKHz uint32, score float64, roundsAsBest uint, isCurrent bool) {
	if c == nil {
		return
	}
	label := fmt.Sprintf("%d", frequencyKHz)
	c.ChannelScore.WithLabelValues(label).Set(score)
	c.ChannelRoundsAsBest.WithLabelValues(label).Set(float64(roundsAsBest))
	if isCurrent {
		c.CurrentChannelKHz.Set(float64(frequencyKHz))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
