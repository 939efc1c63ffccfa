// Package telemetry publishes DCS events over MQTT: additive to the
// required CSV datalog sink, disabled unless configured (spec.md §6's
// telemetry.mqtt.* keys).
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/morse-wifi/dcsd/pkg/datalog"
	"github.com/morse-wifi/dcsd/pkg/dcs"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// Config mirrors the telemetry.mqtt.* configuration keys.
type Config struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
	QoS         int
	Enabled     bool
}

// Publisher publishes dcsd measurement and switch events to an MQTT
// broker. It implements datalog.Sink so it can sit alongside the CSV
// sink in a datalog.MultiSink; it is enabled by the telemetry.mqtt
// section's enabled option, not by a datalog.<name>.enabled key.
type Publisher struct {
	client  MQTT.Client
	logger  *logx.Logger
	config  Config
	limiter *rate.Limiter
}

// NewPublisher builds a disconnected Publisher; call Connect before
// publishing. Publish calls are rate-limited to 10/s to bound broker
// load under a busy scan list, mirroring the teacher's own
// publish-rate-limiting concern but expressed with the standard
// token-bucket limiter instead of a hand-rolled counter.
func NewPublisher(config Config, logger *logx.Logger) *Publisher {
	return &Publisher{
		logger:  logger.WithComponent("telemetry.mqtt"),
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// Connect dials the broker. A no-op if telemetry is disabled.
func (p *Publisher) Connect(ctx context.Context) error {
	if !p.config.Enabled {
		p.logger.Debug("telemetry disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port))
	opts.SetClientID(clientIDOrDefault(p.config.ClientID))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	p.client = MQTT.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("telemetry: connect to %s:%d timed out", p.config.Broker, p.config.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: connect to %s:%d: %w", p.config.Broker, p.config.Port, err)
	}

	p.logger.Info("connected", "broker", p.config.Broker, "port", p.config.Port)
	return nil
}

func clientIDOrDefault(id string) string {
	if id != "" {
		return id
	}
	return "dcsd"
}

// Write publishes a measurement record to "<prefix>/dcs/measurement",
// implementing datalog.Sink.
func (p *Publisher) Write(r datalog.Record) error {
	return p.publish("measurement", r)
}

// PublishSwitch publishes a channel-switch outcome to
// "<prefix>/dcs/switch".
func (p *Publisher) PublishSwitch(candidateFreqKHz uint32, outcome dcs.SwitchOutcome) error {
	return p.publish("switch", switchEvent{
		Time:             time.Now(),
		CandidateFreqKHz: candidateFreqKHz,
		Outcome:          outcome.String(),
	})
}

type switchEvent struct {
	Time             time.Time `json:"time"`
	CandidateFreqKHz uint32    `json:"candidate_freq_khz"`
	Outcome          string    `json:"outcome"`
}

func (p *Publisher) publish(subtopic string, payload interface{}) error {
	if !p.config.Enabled || p.client == nil {
		return nil
	}
	if !p.limiter.Allow() {
		p.logger.Debug("publish rate limited, dropping event", "subtopic", subtopic)
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telemetry: marshal %s event: %w", subtopic, err)
	}

	topic := fmt.Sprintf("%s/dcs/%s", p.config.TopicPrefix, subtopic)
	token := p.client.Publish(topic, byte(p.config.QoS), false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, implementing datalog.Sink.
func (p *Publisher) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
