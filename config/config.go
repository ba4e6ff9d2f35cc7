// package config loads the portal monitor's configuration from an
// abstracted key/value store (spec §6) into a typed Config, applying
// documented defaults for every absent key. A missing or unparsable
// file is logged once and yields the defaults; an individual absent
// key is not logged, and present values are not range-checked.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Channels is the number of detector channels the core supports.
const Channels = 12

// ChannelConfig holds the per-channel settings named in spec §3/§6.
type ChannelConfig struct {
	Enabled bool    `yaml:"on"`
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
	N1      float64 `yaml:"n1"`
}

// Config is the fully-resolved, defaulted configuration for one
// portal monitor instance.
type Config struct {
	// SampleTime is the counting/alarm tick period (spec §6
	// sample_time).
	SampleTime time.Duration
	// DistanceCellules is the distance in meters between cell 1 and
	// cell 2, used by the speed estimator.
	DistanceCellules float64
	// ModeSansCellules disables passage gating and speed estimation
	// when true (spec §6 Mode_sans_cellules).
	ModeSansCellules bool
	// Multiple is the follower-threshold multiplier (background *
	// Multiple).
	Multiple float64
	// N2Factor scales n1 into n2 (spec default 1.5).
	N2Factor float64
	// ResetRatio is the hysteresis ratio (spec default 0.8). It is
	// passed into alarm's channel configuration, which does not
	// evaluate it.
	ResetRatio float64
	// ArmDelay suppresses passage edges for this long after boot.
	ArmDelay time.Duration
	// MinOff is the minimum quiet time before a new passage start is
	// accepted.
	MinOff time.Duration
	// CellStable is the default stability window used by
	// AreCellsFreeAndStable.
	CellStable time.Duration
	// ConfirmTimeout is how long the acknowledge FSM waits for a
	// second press.
	ConfirmTimeout time.Duration
	// AckDisplayHold is how long a cleared ack status message lingers
	// before resetting to idle (spec SUPPLEMENTED FEATURES #2).
	AckDisplayHold time.Duration
	// SpeedReboundWindow discards a passage-edge pair closer together
	// than this (spec: 30 ms).
	SpeedReboundWindow time.Duration
	// SpeedSingleEdgeWindow is how long a lone cell edge waits for its
	// pair before being reported as NO_MEASURE.
	SpeedSingleEdgeWindow time.Duration
	// SpeedFaultThresholdKMH is the km/h above which a speed reading
	// is reported as FAULT rather than a value.
	SpeedFaultThresholdKMH float64
	// FaultPeriod is the fault detector's tick period.
	FaultPeriod time.Duration
	// CurveCapacity bounds each channel's curve ring (spec: 3600).
	CurveCapacity int

	// Sim selects the Simulated hardware backend when true.
	Sim bool
	// EvokHTTPBase and EvokWSURL address the Physical backend.
	EvokHTTPBase string
	EvokWSURL    string
	// InvertedLines lists digital line indices with inverted polarity.
	InvertedLines []int
	// Pins holds the raw PIN_1..PIN_4 values (spec §6); their exact
	// semantics are not determined by the retrieved sources, so the
	// core stores them for external consumers but does not interpret
	// them (see DESIGN.md open questions).
	Pins [4]int

	Channel [Channels]ChannelConfig
}

// Defaults returns the documented defaults from spec §3/§4/§5/§6, with
// every channel enabled and a generous N1.
func Defaults() *Config {
	c := &Config{
		SampleTime:             100 * time.Millisecond,
		DistanceCellules:       0.75,
		ModeSansCellules:       false,
		Multiple:               1.5,
		N2Factor:               1.5,
		ResetRatio:             0.8,
		ArmDelay:               2 * time.Second,
		MinOff:                 200 * time.Millisecond,
		CellStable:             200 * time.Millisecond,
		ConfirmTimeout:         15 * time.Second,
		AckDisplayHold:         2 * time.Second,
		SpeedReboundWindow:     30 * time.Millisecond,
		SpeedSingleEdgeWindow:  5 * time.Second,
		SpeedFaultThresholdKMH: 10,
		FaultPeriod:            time.Second,
		CurveCapacity:          3600,
		Sim:                    true,
		EvokHTTPBase:           "http://127.0.0.1:8080",
		EvokWSURL:              "ws://127.0.0.1:8080/ws",
	}
	for i := range c.Channel {
		c.Channel[i] = ChannelConfig{Enabled: true, Low: 50, High: 20000, N1: 10000}
	}
	return c
}

// fileFormat mirrors the on-disk shape; only present keys override
// Defaults(), matching spec §7's "substitute documented default; log
// once" rule for anything absent.
type fileFormat struct {
	SampleTime       *float64 `yaml:"sample_time"`
	DistanceCellules *float64 `yaml:"distance_cellules"`
	ModeSansCellules *int     `yaml:"Mode_sans_cellules"`
	Multiple         *float64 `yaml:"multiple"`
	Seuil2           *float64 `yaml:"seuil2"`
	Low              *float64 `yaml:"low"`
	High             *float64 `yaml:"high"`
	Sim              *int     `yaml:"SIM"`
	Pins             *[4]int  `yaml:"pins"`
	EvokHTTPBase     *string  `yaml:"evok_http_base"`
	EvokWSURL        *string  `yaml:"evok_ws_url"`
	InvertedLines    []int    `yaml:"polarity_inverted"`
	Channels         map[string]*int `yaml:"channel_enable"`
}

// LoadYAML reads path as a key/value store (spec §6) and returns a
// Config seeded from Defaults() with every present key applied. A
// missing file is not an error: Defaults() alone is returned, since an
// absent config store is itself a documented-default case, not the
// boot-fatal condition spec §7 reserves for a missing database.
func LoadYAML(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("config: %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		log.Printf("config: %s invalid, using defaults: %v", path, err)
		return cfg, nil
	}
	applyOverrides(cfg, &ff)
	return cfg, nil
}

func applyOverrides(cfg *Config, ff *fileFormat) {
	if ff.SampleTime != nil {
		cfg.SampleTime = time.Duration(*ff.SampleTime * float64(time.Second))
	}
	if ff.DistanceCellules != nil {
		cfg.DistanceCellules = *ff.DistanceCellules
	}
	if ff.ModeSansCellules != nil {
		cfg.ModeSansCellules = *ff.ModeSansCellules != 0
	}
	if ff.Multiple != nil {
		cfg.Multiple = *ff.Multiple
	}
	if ff.Sim != nil {
		cfg.Sim = *ff.Sim != 0
	}
	if ff.Pins != nil {
		cfg.Pins = *ff.Pins
	}
	if ff.EvokHTTPBase != nil {
		cfg.EvokHTTPBase = *ff.EvokHTTPBase
	}
	if ff.EvokWSURL != nil {
		cfg.EvokWSURL = *ff.EvokWSURL
	}
	if ff.InvertedLines != nil {
		cfg.InvertedLines = ff.InvertedLines
	}
	// seuil2/low/high apply uniformly across channels unless a
	// per-channel override is added later; this mirrors the single
	// representative key names in spec §6.
	for i := range cfg.Channel {
		if ff.Seuil2 != nil {
			cfg.Channel[i].N1 = *ff.Seuil2
		}
		if ff.Low != nil {
			cfg.Channel[i].Low = *ff.Low
		}
		if ff.High != nil {
			cfg.Channel[i].High = *ff.High
		}
	}
	for key, v := range ff.Channels {
		idx := channelIndex(key)
		if idx < 0 || v == nil {
			continue
		}
		cfg.Channel[idx].Enabled = *v != 0
	}
}

// channelIndex maps a "D<n>_ON"-style key (spec §6: D1_ON..D12_ON) to
// a 0-based index, or -1 if it doesn't match.
func channelIndex(key string) int {
	var n int
	if _, err := fmt.Sscanf(key, "D%d_ON", &n); err != nil {
		return -1
	}
	if n < 1 || n > Channels {
		return -1
	}
	return n - 1
}

// LoadFlags parses ad hoc command-line overrides, the way
// cmd/cli/main.go in the original controller parsed its debug flags.
// It is meant for development runs, not the production service (which
// uses LoadYAML).
func LoadFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Defaults()
	sim := fs.Bool("sim", cfg.Sim, "use the simulated hardware backend")
	evokBase := fs.String("evok-http", cfg.EvokHTTPBase, "EVOK HTTP base URL")
	evokWS := fs.String("evok-ws", cfg.EvokWSURL, "EVOK websocket URL")
	sampleMS := fs.Int("sample-ms", int(cfg.SampleTime/time.Millisecond), "sample time in milliseconds")
	distance := fs.Float64("distance", cfg.DistanceCellules, "distance between cells in meters")
	mss := fs.Bool("no-cells", cfg.ModeSansCellules, "disable passage gating and speed")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Sim = *sim
	cfg.EvokHTTPBase = *evokBase
	cfg.EvokWSURL = *evokWS
	cfg.SampleTime = time.Duration(*sampleMS) * time.Millisecond
	cfg.DistanceCellules = *distance
	cfg.ModeSansCellules = mss != nil && *mss
	return cfg, nil
}
