package dcs

import (
	"context"
	"sync"
	"time"

	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/backend/hostapd"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// switchContext guards the in-flight ECSA state (spec.md §3, §5).
type switchContext struct {
	mu            sync.Mutex
	done          *sync.Cond
	inProgress    bool
	confirmedFreq uint32
}

func newSwitchContext() *switchContext {
	sc := &switchContext{}
	sc.done = sync.NewCond(&sc.mu)
	return sc
}

// SwitchCoordinator implements component H: issues the ECSA, waits for
// the completion notification, verifies the landing channel.
type SwitchCoordinator struct {
	logger      *logx.Logger
	ap          backend.Backend
	ctx         *switchContext
	state       *OperatingState
	triggerCSA  bool
	dtimsForCSA int
}

// NewSwitchCoordinator wires the coordinator to the backend that carries
// CHAN_SWITCH/STATUS (the hostapd control-socket backend in production)
// and to the shared operating state the completion handler mutates.
func NewSwitchCoordinator(ap backend.Backend, state *OperatingState, triggerCSA bool, dtimsForCSA int, logger *logx.Logger) *SwitchCoordinator {
	return &SwitchCoordinator{
		logger:      logger.WithComponent("dcs.switch"),
		ap:          ap,
		ctx:         newSwitchContext(),
		state:       state,
		triggerCSA:  triggerCSA,
		dtimsForCSA: dtimsForCSA,
	}
}

// SwitchTo implements the switch_to(candidate) contract (spec.md §4.H).
func (sc *SwitchCoordinator) SwitchTo(ctx context.Context, candidate *ChannelEntry) (SwitchOutcome, error) {
	if !sc.triggerCSA {
		sc.logger.Info("CSA disabled by configuration, skipping switch", "candidate_khz", candidate.Descriptor.CentreFrequencyKHz)
		return SwitchDisabled, nil
	}

	sc.ctx.mu.Lock()
	defer sc.ctx.mu.Unlock()

	primaryCentre, ok := primaryChannelCentreKHz(candidate.Descriptor.CentreFrequencyKHz, candidate.Descriptor.BandwidthMHz, sc.state.PrimaryWidthMHz, sc.state.Primary1MHzIndex)
	if !ok {
		return SwitchRejected, ErrFatalInvariant
	}
	offset := secondaryChannelOffset(candidate.Descriptor.BandwidthMHz, sc.state.Primary1MHzIndex)

	req := hostapd.ChanSwitchRequest(sc.dtimsForCSA, primaryCentre, sc.state.PrimaryWidthMHz, offset, candidate.Descriptor.CentreFrequencyKHz, candidate.Descriptor.BandwidthMHz)
	reply, err := sc.ap.SubmitBlocking(ctx, req)
	if err != nil {
		sc.logger.Warn("CHAN_SWITCH submit failed", "error", err)
		return SwitchRejected, ErrSwitchRejected
	}
	if !hostapd.IsOK(reply) {
		sc.logger.Warn("CHAN_SWITCH rejected by AP")
		return SwitchRejected, ErrSwitchRejected
	}

	deadline := sc.computeDeadline()
	sc.ctx.inProgress = true
	defer func() {
		sc.ctx.inProgress = false
		sc.ctx.confirmedFreq = 0
	}()

	if !sc.waitForCompletion(deadline) {
		sc.logger.Warn("CHAN_SWITCH timed out waiting for completion notification", "deadline", deadline)
		return SwitchTimeout, ErrSwitchTimeout
	}

	if sc.ctx.confirmedFreq == candidate.Descriptor.CentreFrequencyKHz && sc.ctx.confirmedFreq == sc.state.Current5GFreqKHz {
		return SwitchOk, nil
	}
	sc.logger.Warn("CHAN_SWITCH landed on unexpected channel", "candidate_khz", candidate.Descriptor.CentreFrequencyKHz, "confirmed_khz", sc.ctx.confirmedFreq, "current_khz", sc.state.Current5GFreqKHz)
	return SwitchMismatch, ErrSwitchMismatch
}

// computeDeadline derives beacon_interval_tu·dtim_period·count converted
// to seconds by floor((TU*1024)/1_000_000), plus 5s grace (spec.md §4.H).
func (sc *SwitchCoordinator) computeDeadline() time.Duration {
	tus := sc.state.BeaconIntervalTU * sc.state.DTIMPeriod * sc.dtimsForCSA
	seconds := (tus * 1024) / 1_000_000
	return time.Duration(seconds)*time.Second + 5*time.Second
}

// waitForCompletion blocks on the completion condition up to deadline,
// held under sc.ctx.mu (already locked by the caller). Returns false on
// timeout.
func (sc *SwitchCoordinator) waitForCompletion(deadline time.Duration) bool {
	timer := time.AfterFunc(deadline, func() {
		sc.ctx.mu.Lock()
		sc.ctx.done.Broadcast()
		sc.ctx.mu.Unlock()
	})
	defer timer.Stop()

	deadlineAt := time.Now().Add(deadline)
	for sc.ctx.confirmedFreq == 0 {
		if time.Now().After(deadlineAt) {
			return false
		}
		sc.ctx.done.Wait()
	}
	return true
}

// OnChannelSwitchNotify is the channel-switch-notify handler wired
// through the event engine on the netlink backend's CH_SWITCH_NOTIFY
// event (spec.md §4.H). It must be called with no lock held; it
// acquires the switch mutex itself.
//
// confirmedFreqKHz is the WIPHY_FREQ attribute from the notification.
// reStatus re-reads STATUS, retrying up to 3 times at 1s intervals while
// the AP still reports s1g_freq = -1, to resolve the confirmed
// (freq, bandwidth) pair actually landed on.
func (sc *SwitchCoordinator) OnChannelSwitchNotify(ctx context.Context, confirmedFreqKHz uint32, reStatus func(ctx context.Context) (freqKHz uint32, ready bool, err error)) {
	sc.ctx.mu.Lock()
	defer sc.ctx.mu.Unlock()

	if !sc.ctx.inProgress {
		sc.logger.Debug("spurious CH_SWITCH_NOTIFY while no switch in progress, dropping")
		return
	}

	sc.ctx.confirmedFreq = confirmedFreqKHz

	freq := confirmedFreqKHz
	for attempt := 0; attempt < 3; attempt++ {
		f, ready, err := reStatus(ctx)
		if err == nil && ready {
			freq = f
			break
		}
		time.Sleep(1 * time.Second)
	}

	sc.state.Current5GFreqKHz = freq
	sc.ctx.done.Broadcast()
}
