package uci

import (
	"fmt"
	"strconv"
	"time"
)

// Config is dcsd's configuration, projected from the UCI file's
// recognised keys (spec.md §6). Unknown sections and options are
// preserved opaquely in Raw but never surface here.
type Config struct {
	InterfaceName string

	Hostapd struct {
		ControlPath string
	}

	DCS struct {
		TriggerCSA  bool
		DtimsForCSA int
		AlgoType    string
	}

	EWMA struct {
		Alpha               int
		ThresholdPercentage float64
		RoundsForCSA        int
		SecPerScan          time.Duration
		SecPerRound         time.Duration
	}

	SampleAndHold struct {
		RoundsForEval       int
		ThresholdPercentage float64
		SecPerScan          time.Duration
		SecPerRound         time.Duration
	}

	Test struct {
		Enabled  bool
		Filepath string
	}

	Datalog struct {
		RootDir     string
		SinkEnabled map[string]bool
	}

	Metrics struct {
		Enabled    bool
		ListenAddr string
	}

	Telemetry struct {
		MQTT struct {
			Broker      string
			Port        int
			TopicPrefix string
			QoS         int
			Enabled     bool
		}
	}

	// Raw holds every parsed section verbatim, keyed by "<type>.<name>",
	// for opaque keys this package doesn't interpret (spec.md §1: unknown
	// keys are never an error).
	Raw map[string]map[string]string
}

// LoadConfig reads and validates path, returning a fatal error (wrapping
// ErrInvalidConfig) on any missing required key or out-of-range value,
// per spec.md §7's "configuration error is fatal at startup".
func LoadConfig(path string) (*Config, error) {
	sections, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Raw: make(map[string]map[string]string, len(sections))}
	for key, s := range sections {
		cfg.Raw[key] = s.options
	}

	main := sections["dcs.main"]
	if main == nil {
		return nil, fmt.Errorf("%w: missing config dcs 'main' section", ErrInvalidConfig)
	}
	cfg.InterfaceName, err = requireString(main, "interface_name")
	if err != nil {
		return nil, err
	}

	hostapd := sections["backends.hostapd"]
	if hostapd == nil {
		return nil, fmt.Errorf("%w: missing config backends 'hostapd' section", ErrInvalidConfig)
	}
	cfg.Hostapd.ControlPath, err = requireString(hostapd, "control_path")
	if err != nil {
		return nil, err
	}

	cfg.DCS.TriggerCSA = optBool(main, "trigger_csa", true)
	cfg.DCS.DtimsForCSA, err = requireIntMin(main, "dtims_for_csa", 1)
	if err != nil {
		return nil, err
	}
	cfg.DCS.AlgoType, err = requireOneOf(main, "algo_type", "ewma", "sample_and_hold")
	if err != nil {
		return nil, err
	}

	if err := loadEWMA(sections["dcs.ewma"], cfg); err != nil {
		return nil, err
	}
	if err := loadSampleAndHold(sections["dcs.sample_and_hold"], cfg); err != nil {
		return nil, err
	}

	if cfg.DCS.AlgoType == "ewma" && sections["dcs.ewma"] == nil {
		return nil, fmt.Errorf("%w: algo_type is ewma but config dcs 'ewma' section is missing", ErrInvalidConfig)
	}
	if cfg.DCS.AlgoType == "sample_and_hold" && sections["dcs.sample_and_hold"] == nil {
		return nil, fmt.Errorf("%w: algo_type is sample_and_hold but config dcs 'sample_and_hold' section is missing", ErrInvalidConfig)
	}

	if test := sections["dcs.test"]; test != nil {
		cfg.Test.Enabled = optBool(test, "enabled", false)
		cfg.Test.Filepath = test.options["filepath"]
		if cfg.Test.Enabled && cfg.Test.Filepath == "" {
			return nil, fmt.Errorf("%w: dcs.test.enabled is true but filepath is empty", ErrInvalidConfig)
		}
	}

	datalog := sections["datalog.main"]
	if datalog == nil {
		return nil, fmt.Errorf("%w: missing config datalog 'main' section", ErrInvalidConfig)
	}
	cfg.Datalog.RootDir, err = requireString(datalog, "root_dir")
	if err != nil {
		return nil, err
	}
	cfg.Datalog.SinkEnabled = make(map[string]bool)
	for key, s := range sections {
		if s.typ != "datalog" || s.name == "main" {
			continue
		}
		cfg.Datalog.SinkEnabled[s.name] = optBool(s, "enabled", false)
		_ = key
	}

	if metrics := sections["metrics.main"]; metrics != nil {
		cfg.Metrics.Enabled = optBool(metrics, "enabled", false)
		cfg.Metrics.ListenAddr = metrics.options["listen_addr"]
		if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
			return nil, fmt.Errorf("%w: metrics.enabled is true but listen_addr is empty", ErrInvalidConfig)
		}
	}

	if mqtt := sections["telemetry.mqtt"]; mqtt != nil {
		cfg.Telemetry.MQTT.Enabled = optBool(mqtt, "enabled", false)
		cfg.Telemetry.MQTT.Broker = mqtt.options["broker"]
		cfg.Telemetry.MQTT.TopicPrefix = optString(mqtt, "topic_prefix", "dcs")
		cfg.Telemetry.MQTT.Port = optInt(mqtt, "port", 1883)
		cfg.Telemetry.MQTT.QoS = optInt(mqtt, "qos", 0)
		if cfg.Telemetry.MQTT.Enabled && cfg.Telemetry.MQTT.Broker == "" {
			return nil, fmt.Errorf("%w: telemetry.mqtt.enabled is true but broker is empty", ErrInvalidConfig)
		}
	}

	return cfg, nil
}

func loadEWMA(s *section, cfg *Config) error {
	if s == nil {
		return nil
	}
	var err error
	cfg.EWMA.Alpha, err = requireIntRange(s, "ewma_alpha", 1, 100)
	if err != nil {
		return err
	}
	cfg.EWMA.ThresholdPercentage, err = requireFloat(s, "threshold_percentage")
	if err != nil {
		return err
	}
	cfg.EWMA.RoundsForCSA, err = requireIntMin(s, "rounds_for_csa", 1)
	if err != nil {
		return err
	}
	cfg.EWMA.SecPerScan = optSeconds(s, "sec_per_scan", 5*time.Second)
	cfg.EWMA.SecPerRound = optSeconds(s, "sec_per_round", 60*time.Second)
	return nil
}

func loadSampleAndHold(s *section, cfg *Config) error {
	if s == nil {
		return nil
	}
	var err error
	cfg.SampleAndHold.RoundsForEval, err = requireIntMin(s, "rounds_for_eval", 1)
	if err != nil {
		return err
	}
	cfg.SampleAndHold.ThresholdPercentage, err = requireFloat(s, "threshold_percentage")
	if err != nil {
		return err
	}
	cfg.SampleAndHold.SecPerScan = optSeconds(s, "sec_per_scan", 5*time.Second)
	cfg.SampleAndHold.SecPerRound = optSeconds(s, "sec_per_round", 60*time.Second)
	return nil
}

// AlgoParams projects the selected algorithm's section into the
// map[string]string shape algo.Algorithm.Init expects.
func (c *Config) AlgoParams() map[string]string {
	switch c.DCS.AlgoType {
	case "ewma":
		return map[string]string{
			"ewma_alpha":           strconv.Itoa(c.EWMA.Alpha),
			"threshold_percentage": strconv.FormatFloat(c.EWMA.ThresholdPercentage, 'f', -1, 64),
			"rounds_for_csa":       strconv.Itoa(c.EWMA.RoundsForCSA),
		}
	case "sample_and_hold":
		return map[string]string{
			"rounds_for_eval":      strconv.Itoa(c.SampleAndHold.RoundsForEval),
			"threshold_percentage": strconv.FormatFloat(c.SampleAndHold.ThresholdPercentage, 'f', -1, 64),
		}
	default:
		return nil
	}
}

// SecPerScan and SecPerRound resolve to the selected algorithm's pacing,
// since each algorithm section carries its own (spec.md §6).
func (c *Config) SecPerScan() time.Duration {
	if c.DCS.AlgoType == "sample_and_hold" {
		return c.SampleAndHold.SecPerScan
	}
	return c.EWMA.SecPerScan
}

func (c *Config) SecPerRound() time.Duration {
	if c.DCS.AlgoType == "sample_and_hold" {
		return c.SampleAndHold.SecPerRound
	}
	return c.EWMA.SecPerRound
}
