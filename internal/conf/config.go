// Package conf provides configuration management for fragring.
package conf

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
)

// EnvPrefix is prepended to environment overrides, e.g. FRAGRING_BUFFER_CAPACITY_BYTES.
const EnvPrefix = "FRAGRING"

// Settings is the root configuration.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Buffer     BufferSettings       `yaml:"buffer" mapstructure:"buffer"`
	Frame      FrameSettings        `yaml:"frame" mapstructure:"frame"`
	Drift      DriftSettings        `yaml:"drift" mapstructure:"drift"`
	Jitter     JitterSettings       `yaml:"jitter" mapstructure:"jitter"`
	Capture    CaptureSettings      `yaml:"capture" mapstructure:"capture"`
	Simulation SimulationSettings   `yaml:"simulation" mapstructure:"simulation"`
	Logging    logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics    MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Telemetry  TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
}

// BufferSettings configures ring buffer construction.
type BufferSettings struct {
	CapacityBytes      int           `yaml:"capacity_bytes" mapstructure:"capacity_bytes"`
	ChunkSizeHint      int           `yaml:"chunk_size_hint" mapstructure:"chunk_size_hint"`
	Allocator          string        `yaml:"allocator" mapstructure:"allocator"`   // heap or pool
	MaxBytes           int64         `yaml:"max_bytes" mapstructure:"max_bytes"`   // heap allocator budget, 0 = unlimited
	OverrunLogInterval time.Duration `yaml:"overrun_log_interval" mapstructure:"overrun_log_interval"`
}

// FrameSettings describes the PCM format of a container frame.
type FrameSettings struct {
	SampleRate    int           `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels      int           `yaml:"channels" mapstructure:"channels"`
	BitDepth      int           `yaml:"bit_depth" mapstructure:"bit_depth"`
	FrameDuration time.Duration `yaml:"frame_duration" mapstructure:"frame_duration"`
	Policy        string        `yaml:"policy" mapstructure:"policy"` // drain, zeropad or hold
}

// BytesPerSample returns bytes for one sample of one channel.
func (f FrameSettings) BytesPerSample() int {
	return f.BitDepth / 8
}

// BytesPerSecond returns the PCM data rate.
func (f FrameSettings) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BytesPerSample()
}

// FrameSize returns the container frame size in bytes, rounded down to whole sample frames.
func (f FrameSettings) FrameSize() int {
	samples := int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
	return samples * f.Channels * f.BytesPerSample()
}

// DriftSettings configures the settlement controller.
type DriftSettings struct {
	SettlementInterval time.Duration `yaml:"settlement_interval" mapstructure:"settlement_interval"`
	ToleranceSamples   int           `yaml:"tolerance_samples" mapstructure:"tolerance_samples"`
}

// JitterSettings configures the endpoint-facing jitter buffer and its threshold adjuster.
type JitterSettings struct {
	Allowance     time.Duration `yaml:"allowance" mapstructure:"allowance"`
	AdjustStepUS  int64         `yaml:"adjust_step_us" mapstructure:"adjust_step_us"`
	HoldOffCycles int           `yaml:"hold_off_cycles" mapstructure:"hold_off_cycles"`
	Side          string        `yaml:"side" mapstructure:"side"` // consumer or producer
}

// CaptureSettings configures the audio-capture history buffer.
type CaptureSettings struct {
	History time.Duration `yaml:"history" mapstructure:"history"`
}

// SimulationSettings configures the virtual-clock simulation.
type SimulationSettings struct {
	Duration    time.Duration `yaml:"duration" mapstructure:"duration"`
	ProducerPPM float64       `yaml:"producer_ppm" mapstructure:"producer_ppm"`
	ConsumerPPM float64       `yaml:"consumer_ppm" mapstructure:"consumer_ppm"`
	Pipelines   int           `yaml:"pipelines" mapstructure:"pipelines"` // independent jitter buffers run in parallel

	// PeerCorrection lets the producer follow drift published by the settlement controller
	PeerCorrection bool `yaml:"peer_correction" mapstructure:"peer_correction"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	DSN         string  `yaml:"dsn" mapstructure:"dsn"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
	SampleRate  float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration into the global viper instance and stores the
// result for GetSettings. An empty configPath searches the default paths.
func Load(configPath string) (*Settings, error) {
	settings, err := LoadFrom(viper.GetViper(), configPath)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// LoadFrom reads defaults, the config file and FRAGRING_ environment overrides into v.
func LoadFrom(v *viper.Viper, configPath string) (*Settings, error) {
	if err := initViper(v, configPath); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// initViper registers defaults and reads the config file if present.
func initViper(v *viper.Viper, configPath string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Context("path", configPath).
			Build()
	}

	GetLogger().Info("loaded configuration", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// GetSettings returns the settings stored by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Defaults returns the default settings without reading any file or environment.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		// Defaults are static; failure here is a programming error.
		panic(err)
	}
	return settings
}
