// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// setDefaultConfig registers default values. Durations are strings so that
// WriteDefault renders them readably.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	// 100 ms of 48 kHz stereo 16-bit audio in 20 ms chunks
	v.SetDefault("buffer.capacity_bytes", 19200)
	v.SetDefault("buffer.chunk_size_hint", 3840)
	v.SetDefault("buffer.allocator", "heap")
	v.SetDefault("buffer.max_bytes", 0)
	v.SetDefault("buffer.overrun_log_interval", "5s")

	v.SetDefault("frame.sample_rate", 48000)
	v.SetDefault("frame.channels", 2)
	v.SetDefault("frame.bit_depth", 16)
	v.SetDefault("frame.frame_duration", "10ms")
	v.SetDefault("frame.policy", "zeropad")

	v.SetDefault("drift.settlement_interval", "2s")
	// Above one frame so frame-sized arrival jitter is never published
	v.SetDefault("drift.tolerance_samples", 960)

	v.SetDefault("jitter.allowance", "20ms")
	v.SetDefault("jitter.adjust_step_us", 20)
	v.SetDefault("jitter.hold_off_cycles", 10)
	v.SetDefault("jitter.side", "consumer")

	v.SetDefault("capture.history", "5s")

	v.SetDefault("simulation.duration", "60s")
	v.SetDefault("simulation.producer_ppm", 50.0)
	v.SetDefault("simulation.consumer_ppm", -50.0)
	v.SetDefault("simulation.pipelines", 1)
	v.SetDefault("simulation.peer_correction", true)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/fragring.log")
	v.SetDefault("logging.file_output.level", "debug")
	v.SetDefault("logging.file_output.max_size", 100)
	v.SetDefault("logging.file_output.max_age", 30)
	v.SetDefault("logging.file_output.max_rotated_files", 10)
	v.SetDefault("logging.file_output.compress", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.sample_rate", 1.0)
}
