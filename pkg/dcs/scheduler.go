// Package dcs implements the Dynamic Channel Selection core: the
// measurement/evaluation/switch state machine (component G) and the
// channel-switch coordinator (component H).
package dcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/morse-wifi/dcsd/pkg/algo"
	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/backend/hostapd"
	"github.com/morse-wifi/dcsd/pkg/backend/morse"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

const (
	maxReadyAttempts   = 10
	readyRetryInterval = 10 * time.Second
	maxChannelFailures = 3
)

// SchedulerConfig mirrors the dcs.* configuration keys this core
// recognises (spec.md §6).
type SchedulerConfig struct {
	TriggerCSA  bool
	DtimsForCSA int
	SecPerScan  time.Duration
	SecPerRound time.Duration
}

// SchedulerObserver receives scheduler events purely for recording
// (datalog, metrics); the scheduler's own control flow never depends on
// an observer being set. Both methods are called synchronously from the
// scheduler's own goroutine, so an observer must not block.
type SchedulerObserver interface {
	// OnMeasurement is called once per successful measurement, after the
	// sample has been folded into the scoring algorithm.
	OnMeasurement(channel, current *ChannelEntry, sample Sample)

	// OnSwitch is called once per end-of-round switch attempt, after
	// SwitchTo has returned.
	OnSwitch(candidateFreqKHz uint32, outcome SwitchOutcome)
}

// Scheduler implements component G: INIT then RUN forever, delegating
// measurement to a Measurer (live vendor path or replay) and scoring to
// an algo.Algorithm.
type Scheduler struct {
	logger *logx.Logger
	config SchedulerConfig

	ap       backend.Backend
	measurer Measurer
	algo     algo.Algorithm
	switchTo *SwitchCoordinator

	allChannels []*ChannelEntry
	scanList    []*ChannelEntry
	scanIdx     int

	state *OperatingState

	// Observer is optional; set it before Run to mirror each measurement
	// and switch outcome into a datalog/metrics sink.
	Observer SchedulerObserver
}

// NewScheduler wires a scheduler; call Init before Run. ap is the
// control-socket backend (hostapd in production); it is typed as the
// generic backend.Backend interface so tests can substitute a fake.
func NewScheduler(ap backend.Backend, measurer Measurer, algorithm algo.Algorithm, switchTo *SwitchCoordinator, state *OperatingState, config SchedulerConfig, logger *logx.Logger) *Scheduler {
	return &Scheduler{
		logger:   logger.WithComponent("dcs.scheduler"),
		config:   config,
		ap:       ap,
		measurer: measurer,
		algo:     algorithm,
		switchTo: switchTo,
		state:    state,
	}
}

// Init implements the INIT state (spec.md §4.G): wait for the AP,
// enumerate permitted channels, read the operating state, resolve the
// current channel, and build the scan list.
func (s *Scheduler) Init(ctx context.Context, vendor *morse.Backend) error {
	if err := s.waitForReady(ctx); err != nil {
		return err
	}

	channels, err := s.fetchPermittedChannels(ctx, vendor)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return fmt.Errorf("%w: no permitted channels reported", ErrConfiguration)
	}
	s.allChannels = channels

	if err := s.readOperatingState(ctx); err != nil {
		return err
	}

	s.scanList = buildScanList(s.allChannels, s.state.CurrentChannel.Descriptor.BandwidthMHz, s.state.PrimaryWidthMHz, s.state.Primary1MHzIndex)
	if len(s.scanList) == 0 {
		return fmt.Errorf("%w: scan list empty after filtering", ErrConfiguration)
	}
	s.scanIdx = 0

	return nil
}

// waitForReady polls STATUS for s1g_freq != -1 up to maxReadyAttempts
// times at readyRetryInterval spacing.
func (s *Scheduler) waitForReady(ctx context.Context) error {
	for attempt := 0; attempt < maxReadyAttempts; attempt++ {
		reply, err := s.ap.SubmitBlocking(ctx, hostapd.StatusRequest())
		if err == nil {
			if freq, ready := statusS1GFreq(reply); ready {
				_ = freq
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyRetryInterval):
		}
	}
	return fmt.Errorf("%w: AP did not reach ENABLED state after %d attempts", ErrConfiguration, maxReadyAttempts)
}

func (s *Scheduler) fetchPermittedChannels(ctx context.Context, vendor *morse.Backend) ([]*ChannelEntry, error) {
	req := morse.BuildBatchRequest([]morse.Record{morse.BuildGetAvailableChannelsRecord()})
	reply, err := vendor.SubmitBlocking(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET_AVAILABLE_CHANNELS: %v", ErrTransientBackend, err)
	}

	data := decodeBatchReplyPayload(reply, uint32(morse.MsgGetAvailableChannels))
	if data == nil {
		return nil, fmt.Errorf("%w: GET_AVAILABLE_CHANNELS returned no data", ErrTransientBackend)
	}

	available := morse.DecodeAvailableChannels(data)
	channels := make([]*ChannelEntry, 0, len(available))
	for _, ch := range available {
		channels = append(channels, newChannelEntry(ChannelDescriptor{
			S1GChannelNumber:   ch.S1GChannelNumber,
			CentreFrequencyKHz: ch.CentreFreqKHz,
			BandwidthMHz:       int(ch.BandwidthMHz),
		}))
	}
	return channels, nil
}

// readOperatingState reads STATUS, populates s.state's fields, and
// resolves CurrentChannel against s.allChannels by frequency and
// bandwidth. Called both at Init and, to re-sync after a switch timeout
// or mismatch, from endOfRound — s.allChannels must already be
// populated by the time either caller invokes it.
func (s *Scheduler) readOperatingState(ctx context.Context) error {
	reply, err := s.ap.SubmitBlocking(ctx, hostapd.StatusRequest())
	if err != nil {
		return fmt.Errorf("%w: STATUS: %v", ErrTransientBackend, err)
	}
	st, ok := parseStatus(reply)
	if !ok {
		return fmt.Errorf("%w: STATUS missing required fields", ErrConfiguration)
	}
	s.state.Current5GFreqKHz = st.freqKHz
	s.state.PrimaryWidthMHz = st.primaryWidthMHz
	s.state.Primary1MHzIndex = st.primary1MHzIndex
	s.state.BeaconIntervalTU = st.beaconIntervalTU
	s.state.DTIMPeriod = st.dtimPeriod

	current := findByFrequencyAndBandwidth(s.allChannels, st.freqKHz, st.bandwidthMHz)
	if current == nil {
		return fmt.Errorf("%w: current operating channel not in permitted set", ErrConfiguration)
	}
	s.state.CurrentChannel = current
	return nil
}

// Run implements the RUN state (spec.md §4.G): an infinite measure /
// process / evaluate loop. It returns only when ctx is cancelled, the
// measurement source reports ErrSourceExhausted, or a fatal invariant
// violation terminates the process via logx.Logger.Fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.SecPerScan):
		}

		if err := s.tick(ctx); err != nil {
			if errors.Is(err, ErrSourceExhausted) {
				s.logger.Info("measurement source exhausted, halting")
				return nil
			}
			if errors.Is(err, ErrFatalInvariant) {
				s.logger.Fatal("fatal invariant violation, terminating", "error", err)
			}
			s.logger.Warn("scheduler tick failed", "error", err)
		}

		if s.scanIdx == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.SecPerRound):
			}
		}
	}
}

// tick measures the current scan-list head, processes the result, and
// advances the iterator. Reaching the head again triggers end-of-round
// evaluation, whether by a successful measurement's advance or by a
// failed channel's removal wrapping the index back to 0.
func (s *Scheduler) tick(ctx context.Context) error {
	if len(s.scanList) == 0 {
		return fmt.Errorf("%w: scan list exhausted", ErrConfiguration)
	}

	channel := s.scanList[s.scanIdx]
	sample, err := s.measurer.Measure(ctx, channel)
	if err != nil {
		failErr, roundEnded := s.onMeasurementFailure(channel, err)
		if roundEnded {
			if roundErr := s.endOfRound(ctx); roundErr != nil {
				return roundErr
			}
		}
		return failErr
	}
	channel.consecutiveFailures = 0
	channel.Metric.SamplesTaken++

	s.algo.ProcessMeasurement(algo.Sample{FrequencyKHz: channel.Descriptor.CentreFrequencyKHz, Metric: float64(sample.MetricRaw)}, channel.algoEntry)

	if s.Observer != nil {
		s.Observer.OnMeasurement(channel, s.state.CurrentChannel, sample)
	}

	s.scanIdx++
	if s.scanIdx >= len(s.scanList) {
		s.scanIdx = 0
		return s.endOfRound(ctx)
	}
	return nil
}

// onMeasurementFailure implements the per-channel 3-strike retry policy
// (spec.md §4.G): the current operating channel is never removed, only
// reset. roundEnded reports whether removing channel landed scanIdx back
// at 0 (it was the scan list's tail), which ends the round exactly as
// reaching the tail via the success path does; the caller must then
// invoke endOfRound itself, mirroring the success branch's check.
func (s *Scheduler) onMeasurementFailure(channel *ChannelEntry, cause error) (err error, roundEnded bool) {
	if errors.Is(cause, ErrSourceExhausted) {
		return cause, false
	}

	channel.consecutiveFailures++
	if channel == s.state.CurrentChannel {
		channel.consecutiveFailures = 0
		return fmt.Errorf("%w: measurement failed for current channel: %v", ErrMeasurementFailure, cause), false
	}
	if channel.consecutiveFailures >= maxChannelFailures {
		roundEnded = s.removeFromScanList(channel)
	}
	return fmt.Errorf("%w: %v", ErrMeasurementFailure, cause), roundEnded
}

// removeFromScanList drops channel, which is always the entry at the
// current scan index (the one that just exhausted its retry budget): the
// remaining entries shift left, so scanIdx already points at the next
// entry to measure without adjustment. wrapped reports whether scanIdx
// had to be clamped back to 0 because channel was at the tail.
func (s *Scheduler) removeFromScanList(channel *ChannelEntry) (wrapped bool) {
	out := s.scanList[:0]
	for _, c := range s.scanList {
		if c == channel {
			continue
		}
		out = append(out, c)
	}
	s.scanList = out
	wrapped = s.scanIdx >= len(s.scanList)
	if wrapped {
		s.scanIdx = 0
	}
	s.logger.Warn("removed channel from scan list after repeated measurement failures", "freq_khz", channel.Descriptor.CentreFrequencyKHz)
	return wrapped
}

// endOfRound implements spec.md §4.G's end-of-round handling: ask the
// algorithm for a candidate, and if one is returned, invoke the switch
// coordinator.
func (s *Scheduler) endOfRound(ctx context.Context) error {
	algoList := make([]*algo.ChannelEntry, len(s.scanList))
	for i, c := range s.scanList {
		algoList[i] = c.algoEntry
	}

	candidateEntry := s.algo.EvaluateChannels(algoList, s.state.CurrentChannel.algoEntry)
	if candidateEntry == nil {
		return nil
	}

	candidate := s.findByAlgoEntry(candidateEntry)
	if candidate == nil || candidate == s.state.CurrentChannel {
		return nil
	}

	outcome, err := s.switchTo.SwitchTo(ctx, candidate)
	if s.Observer != nil {
		s.Observer.OnSwitch(candidate.Descriptor.CentreFrequencyKHz, outcome)
	}
	switch outcome {
	case SwitchOk:
		s.state.CurrentChannel = candidate
		s.algo.PostSwitch(algoList, candidateEntry)
		s.scanList = buildScanList(s.allChannels, candidate.Descriptor.BandwidthMHz, s.state.PrimaryWidthMHz, s.state.Primary1MHzIndex)
		s.scanIdx = 0
		return nil
	case SwitchDisabled:
		s.logger.Info("switch suppressed by configuration", "candidate_khz", candidate.Descriptor.CentreFrequencyKHz)
		return nil
	case SwitchRejected:
		return err
	case SwitchTimeout, SwitchMismatch:
		if reErr := s.readOperatingState(ctx); reErr != nil {
			s.logger.Warn("failed to re-read operating state after switch outcome", "outcome", outcome, "error", reErr)
		}
		return err
	default:
		return ErrFatalInvariant
	}
}

func (s *Scheduler) findByAlgoEntry(e *algo.ChannelEntry) *ChannelEntry {
	for _, c := range s.scanList {
		if c.algoEntry == e {
			return c
		}
	}
	return nil
}
