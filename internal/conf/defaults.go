package conf

import "github.com/spf13/viper"

// setDefaultConfig registers default values for every setting.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("acquisition.device_id", "synthetic-0")
	viper.SetDefault("acquisition.board", BoardSynthetic)
	viper.SetDefault("acquisition.capacity", 45000) // 180 s at 250 Hz
	viper.SetDefault("acquisition.channels", 0)
	viper.SetDefault("acquisition.sample_rate", 250.0)
	viper.SetDefault("acquisition.overflow", OverflowOverwriteOldest)
	viper.SetDefault("acquisition.synthetic.amplitude", 50.0)
	viper.SetDefault("acquisition.synthetic.noise", 5.0)
	viper.SetDefault("acquisition.synthetic.seed", 0)
	viper.SetDefault("acquisition.playback.file", "")
	viper.SetDefault("acquisition.playback.dir", "recordings")
	viper.SetDefault("acquisition.playback.loop", false)
	viper.SetDefault("acquisition.playback.realtime", true)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/biosignal.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.listen", "127.0.0.1:8080")

	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.path", "biosignal.db")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "biosignal")
	viper.SetDefault("mqtt.client_id", "biosignal-go")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
