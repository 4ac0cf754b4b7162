package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for an environment variable binding
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIOSIGNAL_DEBUG", validateEnvBool},

		{"acquisition.device_id", "BIOSIGNAL_DEVICE_ID", nil},
		{"acquisition.board", "BIOSIGNAL_BOARD", validateEnvBoard},
		{"acquisition.capacity", "BIOSIGNAL_CAPACITY", validateEnvPositiveInt},
		{"acquisition.channels", "BIOSIGNAL_CHANNELS", validateEnvNonNegativeInt},
		{"acquisition.sample_rate", "BIOSIGNAL_SAMPLE_RATE", validateEnvPositiveFloat},
		{"acquisition.overflow", "BIOSIGNAL_OVERFLOW", validateEnvOverflow},
		{"acquisition.playback.file", "BIOSIGNAL_PLAYBACK_FILE", nil},
		{"acquisition.playback.dir", "BIOSIGNAL_PLAYBACK_DIR", nil},

		{"logging.default_level", "BIOSIGNAL_LOG_LEVEL", validateEnvLogLevel},

		{"telemetry.listen", "BIOSIGNAL_METRICS_LISTEN", validateEnvListen},
		{"api.listen", "BIOSIGNAL_API_LISTEN", validateEnvListen},
		{"journal.path", "BIOSIGNAL_JOURNAL_PATH", nil},

		{"mqtt.enabled", "BIOSIGNAL_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "BIOSIGNAL_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "BIOSIGNAL_MQTT_USERNAME", nil},
		{"mqtt.password", "BIOSIGNAL_MQTT_PASSWORD", nil},

		{"sentry.dsn", "BIOSIGNAL_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every environment variable and validates the ones that are set.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("not an integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("not an integer: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative, got %d", n)
	}
	return nil
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("not a number: %w", err)
	}
	if f <= 0 {
		return fmt.Errorf("must be positive, got %g", f)
	}
	return nil
}

func validateEnvBoard(value string) error {
	return oneOf(value, BoardSynthetic, BoardPlayback)
}

func validateEnvOverflow(value string) error {
	return oneOf(value, OverflowOverwriteOldest, OverflowDropNewest)
}

func validateEnvLogLevel(value string) error {
	return oneOf(value, "trace", "debug", "info", "warn", "error")
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("expected host:port: %w", err)
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func oneOf(value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
}
