package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/biosignal-go/internal/acquisition"
)

// ValidationError collects every problem found in a Settings value
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	collect := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	collect(validateAcquisitionSettings(&settings.Acquisition))
	collect(validateLoggingLevel(settings.Logging.DefaultLevel))
	if settings.Telemetry.Enabled {
		collect(listenAddr("telemetry.listen", settings.Telemetry.Listen))
	}
	if settings.API.Enabled {
		collect(listenAddr("api.listen", settings.API.Listen))
	}
	if settings.Journal.Enabled && settings.Journal.Path == "" {
		ve.Errors = append(ve.Errors, "journal.path is required when the journal is enabled")
	}
	collect(validateMQTTSettings(&settings.MQTT))
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAcquisitionSettings(a *AcquisitionSettings) error {
	var problems []string

	if strings.TrimSpace(a.DeviceID) == "" {
		problems = append(problems, "acquisition.device_id must not be empty")
	}
	if err := validateEnvBoard(a.Board); err != nil {
		problems = append(problems, "acquisition.board "+err.Error())
	}
	if a.Capacity < 1 {
		problems = append(problems, fmt.Sprintf("acquisition.capacity must be at least 1, got %d", a.Capacity))
	}
	if a.Capacity > acquisition.MaxBufferValues/max(a.Channels, 1) {
		problems = append(problems, fmt.Sprintf("acquisition.capacity %d exceeds the %d value buffer limit", a.Capacity, acquisition.MaxBufferValues))
	}
	if a.Channels < 0 {
		problems = append(problems, fmt.Sprintf("acquisition.channels must be non-negative, got %d", a.Channels))
	}
	if a.SampleRate <= 0 {
		problems = append(problems, fmt.Sprintf("acquisition.sample_rate must be positive, got %g", a.SampleRate))
	}
	if err := validateEnvOverflow(a.Overflow); err != nil {
		problems = append(problems, "acquisition.overflow "+err.Error())
	}
	if a.Board == BoardPlayback && a.Playback.File == "" {
		problems = append(problems, "acquisition.playback.file is required for the playback board")
	}
	if a.Synthetic.Noise < 0 {
		problems = append(problems, "acquisition.synthetic.noise must be non-negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validateLoggingLevel(level string) error {
	if level == "" {
		return nil
	}
	if err := validateEnvLogLevel(level); err != nil {
		return fmt.Errorf("logging.default_level %w", err)
	}
	return nil
}

func listenAddr(key, value string) error {
	if err := validateEnvListen(value); err != nil {
		return fmt.Errorf("%s %w", key, err)
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) error {
	if !m.Enabled {
		return nil
	}
	if err := validateEnvBrokerURL(m.Broker); err != nil {
		return fmt.Errorf("mqtt.broker %w", err)
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	return nil
}
