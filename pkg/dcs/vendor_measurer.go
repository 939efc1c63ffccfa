package dcs

import (
	"context"
	"time"

	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/backend/morse"
	"github.com/morse-wifi/dcsd/pkg/engine"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

const measurementTimeout = 10 * time.Second

// VendorMeasurer drives the live off-channel-scan path: it issues
// OCS_DRIVER on the vendor backend and blocks on its scan context until
// the asynchronous OCS_DONE handler (wired via RegisterOCSDoneHandler)
// delivers a result, or the measurement times out.
type VendorMeasurer struct {
	logger  *logx.Logger
	vendor  *morse.Backend
	state   *OperatingState
	scanCtx *scanContext
}

// NewVendorMeasurer wires a measurer against the vendor backend. Call
// RegisterOCSDoneHandler once on the engine that pumps the vendor
// backend's async events before starting the scheduler.
func NewVendorMeasurer(vendor *morse.Backend, state *OperatingState, logger *logx.Logger) *VendorMeasurer {
	return &VendorMeasurer{
		logger:  logger.WithComponent("dcs.measure"),
		vendor:  vendor,
		state:   state,
		scanCtx: newScanContext(),
	}
}

// RegisterOCSDoneHandler wires the vendor backend's OCS_DONE events
// through the event engine's dispatcher into this measurer's scan
// context.
func (m *VendorMeasurer) RegisterOCSDoneHandler(eng *engine.Engine) {
	eng.RegisterEvent(m.vendor, morse.IsOCSDoneEvent, m.onOCSDone, nil)
}

func (m *VendorMeasurer) onOCSDone(_ interface{}, _ backend.Backend, result *item.Item) {
	evt, err := morse.DecodeOCSDone(result)
	if err != nil {
		m.logger.Debug("dropping malformed OCS_DONE event", "error", err)
		return
	}

	m.scanCtx.mu.Lock()
	channel := m.scanCtx.currentChannelUnderMeasurement
	m.scanCtx.mu.Unlock()
	if channel == nil {
		m.logger.Debug("dropping OCS_DONE with no measurement in flight")
		return
	}

	m.scanCtx.complete(channel, Sample{
		CapturedAt:   time.Now(),
		MetricRaw:    evt.Metric,
		NoiseRSSI:    evt.Noise,
		ListenTimeUS: evt.TimeListenUS,
		RxTimeUS:     evt.TimeRxUS,
	})
}

// Measure implements Measurer.
func (m *VendorMeasurer) Measure(ctx context.Context, channel *ChannelEntry) (Sample, error) {
	m.scanCtx.beginMeasurement(channel)

	record := morse.BuildOCSDriverRecord(morse.OCSDriverPayload{
		OpChannelFreqHz:   channel.Descriptor.CentreFrequencyKHz * 1000,
		OpChannelBWMHz:    uint8(channel.Descriptor.BandwidthMHz),
		PriChannelBWMHz:   uint8(m.state.PrimaryWidthMHz),
		Pri1MHzChannelIdx: uint8(m.state.Primary1MHzIndex),
	})

	req := morse.BuildBatchRequest([]morse.Record{record})
	if _, err := m.vendor.SubmitBlocking(ctx, req); err != nil {
		return Sample{}, ErrTransientBackend
	}

	sample, ok := m.scanCtx.wait(measurementTimeout)
	if !ok {
		return Sample{}, ErrMeasurementFailure
	}
	return sample, nil
}
