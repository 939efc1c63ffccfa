// Command dcsd runs the Dynamic Channel Selection daemon: it wires the
// control-socket, netlink, and vendor-command backends to the DCS
// scheduler and switch coordinator, then drives the INIT/RUN state
// machine until a shutdown signal or (in replay mode) the recording is
// exhausted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/morse-wifi/dcsd/pkg/algo/factory"
	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/backend/hostapd"
	"github.com/morse-wifi/dcsd/pkg/backend/morse"
	"github.com/morse-wifi/dcsd/pkg/backend/nl80211"
	"github.com/morse-wifi/dcsd/pkg/datalog"
	"github.com/morse-wifi/dcsd/pkg/dcs"
	"github.com/morse-wifi/dcsd/pkg/engine"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
	"github.com/morse-wifi/dcsd/pkg/metrics"
	"github.com/morse-wifi/dcsd/pkg/pidfile"
	"github.com/morse-wifi/dcsd/pkg/replay"
	"github.com/morse-wifi/dcsd/pkg/telemetry"
	"github.com/morse-wifi/dcsd/pkg/uci"
)

var (
	configPath = flag.String("config", "/etc/config/dcs", "Path to UCI configuration file")
	pidPath    = flag.String("pid-file", "/var/run/dcsd.pid", "Path to PID file")
	logLevel   = flag.String("log-level", "", "Override log level (trace|debug|info|warn|error)")
	version    = flag.Bool("version", false, "Show version information")
	force      = flag.Bool("force", false, "Force start by removing a stale PID file")
)

const (
	appName    = "dcsd"
	appVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		return
	}

	logger := logx.NewLogger(effectiveLogLevel(*logLevel), appName)

	pf := pidfile.New(*pidPath)
	running, existingPID, err := pf.CheckRunning()
	if err != nil {
		logger.Error("failed to check for a running instance", "error", err)
		os.Exit(1)
	}
	if running {
		if !*force {
			logger.Error("another instance is already running", "pid", existingPID)
			os.Exit(1)
		}
		logger.Warn("removing stale PID file", "pid", existingPID)
		if err := pf.ForceRemove(); err != nil {
			logger.Error("failed to remove stale PID file", "error", err)
			os.Exit(1)
		}
	}
	if err := pf.Create(); err != nil {
		logger.Error("failed to create PID file", "error", err, "path", *pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			logger.Error("failed to remove PID file", "error", err)
		}
	}()

	logger.Info("starting", "version", appVersion, "pid", os.Getpid(), "config", *configPath)

	cfg, err := uci.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("dcsd exited with error", "error", err)
		os.Exit(1)
	}
}

func effectiveLogLevel(override string) string {
	if override != "" {
		return override
	}
	return "info"
}

// run wires every component and blocks until ctx is cancelled by a
// shutdown signal or the scheduler halts on its own (replay exhaustion).
func run(cfg *uci.Config, logger *logx.Logger) error {
	iface, err := net.InterfaceByName(cfg.InterfaceName)
	if err != nil {
		return fmt.Errorf("resolve interface %q: %w", cfg.InterfaceName, err)
	}

	apBackend := hostapd.New(cfg.Hostapd.ControlPath, cfg.InterfaceName, logger)
	defer apBackend.Close()

	nlBackend, err := nl80211.New(logger)
	if err != nil {
		return fmt.Errorf("open nl80211 backend: %w", err)
	}
	defer nlBackend.Close()

	vendorBackend := morse.New(nlBackend, uint32(iface.Index), logger)

	algorithm, err := factory.NewDefaultRegistry().New(cfg.DCS.AlgoType)
	if err != nil {
		return fmt.Errorf("resolve algorithm: %w", err)
	}
	if err := algorithm.Init(cfg.AlgoParams()); err != nil {
		return fmt.Errorf("init algorithm %q: %w", cfg.DCS.AlgoType, err)
	}
	defer algorithm.Deinit()

	state := &dcs.OperatingState{}
	switchTo := dcs.NewSwitchCoordinator(apBackend, state, cfg.DCS.TriggerCSA, cfg.DCS.DtimsForCSA, logger)

	eng := engine.New(logger)

	var measurer dcs.Measurer
	if cfg.Test.Enabled {
		src, err := replay.Load(cfg.Test.Filepath)
		if err != nil {
			return fmt.Errorf("load replay recording: %w", err)
		}
		measurer = src
		logger.Info("running against a recorded measurement source", "filepath", cfg.Test.Filepath)
	} else {
		vendorMeasurer := dcs.NewVendorMeasurer(vendorBackend, state, logger)
		vendorMeasurer.RegisterOCSDoneHandler(eng)
		measurer = vendorMeasurer
	}

	sink, publisher, closeSinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	metricsCollector, stopMetrics, err := startMetrics(cfg, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	scheduler := dcs.NewScheduler(apBackend, measurer, algorithm, switchTo, state, dcs.SchedulerConfig{
		TriggerCSA:  cfg.DCS.TriggerCSA,
		DtimsForCSA: cfg.DCS.DtimsForCSA,
		SecPerScan:  cfg.SecPerScan(),
		SecPerRound: cfg.SecPerRound(),
	}, logger)
	scheduler.Observer = &recorder{logger: logger, sink: sink, publisher: publisher, metrics: metricsCollector, state: state}

	if err := scheduler.Init(context.Background(), vendorBackend); err != nil {
		return fmt.Errorf("scheduler init: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.RegisterEvent(nlBackend, nl80211.IsChSwitchNotifyEvent, chSwitchNotifyHandler(switchTo, apBackend, logger), nil)
	eng.Start(ctx)
	defer eng.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- scheduler.Run(ctx) }()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("scheduler run: %w", err)
		}
		logger.Info("scheduler halted on its own")
	}

	return nil
}

// chSwitchNotifyHandler adapts an nl80211 CH_SWITCH_NOTIFY event into
// SwitchCoordinator.OnChannelSwitchNotify's contract: decode the landing
// frequency, then hand the coordinator a closure that re-reads STATUS.
func chSwitchNotifyHandler(switchTo *dcs.SwitchCoordinator, ap *hostapd.Backend, logger *logx.Logger) engine.DataCallback {
	return func(_ interface{}, _ backend.Backend, evt *item.Item) {
		freqKHz, err := nl80211.DecodeChSwitchNotify(evt)
		if err != nil {
			logger.Debug("dropping malformed CH_SWITCH_NOTIFY event", "error", err)
			return
		}
		switchTo.OnChannelSwitchNotify(context.Background(), freqKHz, func(ctx context.Context) (uint32, bool, error) {
			reply, err := ap.SubmitBlocking(ctx, hostapd.StatusRequest())
			if err != nil {
				return 0, false, err
			}
			freq, ready := statusFreqReady(reply)
			return freq, ready, nil
		})
	}
}

// statusFreqReady extracts STATUS's freq and s1g_freq fields directly
// (rather than through pkg/dcs's unexported status parser) since the
// re-read closure lives outside that package.
func statusFreqReady(reply *item.Item) (uint32, bool) {
	s1g := item.Sibling(reply, item.StringKey("s1g_freq"))
	freq := item.Sibling(reply, item.StringKey("freq"))
	if s1g == nil || freq == nil {
		return 0, false
	}
	s1gVal, err := strconv.Atoi(s1g.ValueString())
	if err != nil || s1gVal == -1 {
		return 0, false
	}
	v, err := strconv.Atoi(freq.ValueString())
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func buildSinks(cfg *uci.Config, logger *logx.Logger) (*datalog.MultiSink, *telemetry.Publisher, func(), error) {
	var sinks []datalog.Sink
	var publisher *telemetry.Publisher

	if cfg.Datalog.SinkEnabled["csv"] {
		csvSink, err := datalog.NewCSVSink(cfg.Datalog.RootDir, logger)
		if err != nil {
			return nil, nil, func() {}, fmt.Errorf("open csv datalog sink: %w", err)
		}
		sinks = append(sinks, csvSink)
	}

	if cfg.Telemetry.MQTT.Enabled {
		publisher = telemetry.NewPublisher(telemetry.Config{
			Broker:      cfg.Telemetry.MQTT.Broker,
			Port:        cfg.Telemetry.MQTT.Port,
			TopicPrefix: cfg.Telemetry.MQTT.TopicPrefix,
			QoS:         cfg.Telemetry.MQTT.QoS,
			Enabled:     true,
		}, logger)
		if err := publisher.Connect(context.Background()); err != nil {
			logger.Warn("failed to connect telemetry publisher, continuing without it", "error", err)
			publisher = nil
		} else {
			sinks = append(sinks, publisher)
		}
	}

	multi := datalog.NewMultiSink(logger, sinks...)
	return multi, publisher, func() { multi.Close() }, nil
}

func startMetrics(cfg *uci.Config, logger *logx.Logger) (*metrics.Collector, func(), error) {
	if !cfg.Metrics.Enabled {
		return nil, func() {}, nil
	}
	collector, err := metrics.New(nil)
	if err != nil {
		return nil, func() {}, fmt.Errorf("register metrics collectors: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return collector, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, nil
}

// recorder implements dcs.SchedulerObserver, mirroring each measurement
// and switch outcome into the datalog sink and the metrics collector.
type recorder struct {
	logger    *logx.Logger
	sink      datalog.Sink
	publisher *telemetry.Publisher
	metrics   *metrics.Collector
	state     *dcs.OperatingState
}

func (r *recorder) OnMeasurement(channel, current *dcs.ChannelEntry, sample dcs.Sample) {
	isCurrent := channel == current
	rec := datalog.Record{
		Time:                   time.Now(),
		FrequencyKHz:           channel.Descriptor.CentreFrequencyKHz,
		BandwidthMHz:           channel.Descriptor.BandwidthMHz,
		ChannelS1G:             int(channel.Descriptor.S1GChannelNumber),
		Metric:                 sample.MetricRaw,
		AccumulatedScore:       uint32(channel.AccumulatedScore()),
		RoundsAsBestForChannel: uint(channel.RoundsAsBest()),
		CurrentChannelKHz:      current.Descriptor.CentreFrequencyKHz,
	}
	if err := r.sink.Write(rec); err != nil {
		r.logger.Warn("datalog write failed", "error", err)
	}
	if r.metrics != nil {
		r.metrics.RecordMeasurement(true)
		r.metrics.SetChannelState(channel.Descriptor.CentreFrequencyKHz, channel.AccumulatedScore(), uint(channel.RoundsAsBest()), isCurrent)
	}
}

func (r *recorder) OnSwitch(candidateFreqKHz uint32, outcome dcs.SwitchOutcome) {
	if r.metrics != nil {
		r.metrics.RecordSwitch(outcome)
	}
	if r.publisher != nil {
		if err := r.publisher.PublishSwitch(candidateFreqKHz, outcome); err != nil {
			r.logger.Warn("telemetry switch publish failed", "error", err)
		}
	}
}
