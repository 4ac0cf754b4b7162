// Package conf loads and validates biosignal-go settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// Overflow policy names accepted in acquisition.overflow
const (
	OverflowOverwriteOldest = "overwrite-oldest"
	OverflowDropNewest      = "drop-newest"
)

// Board type names accepted in acquisition.board
const (
	BoardSynthetic = "synthetic"
	BoardPlayback  = "playback"
)

// Settings is the root configuration
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Acquisition AcquisitionSettings  `yaml:"acquisition" mapstructure:"acquisition"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Telemetry   TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	API         APISettings          `yaml:"api" mapstructure:"api"`
	Journal     JournalSettings      `yaml:"journal" mapstructure:"journal"`
	MQTT        MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Sentry      SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
}

// AcquisitionSettings configures the default session and its board
type AcquisitionSettings struct {
	DeviceID   string            `yaml:"device_id" mapstructure:"device_id"`
	Board      string            `yaml:"board" mapstructure:"board"`             // synthetic or playback
	Capacity   int               `yaml:"capacity" mapstructure:"capacity"`       // ring buffer size in frames
	Channels   int               `yaml:"channels" mapstructure:"channels"`       // 0 = take from board
	SampleRate float64           `yaml:"sample_rate" mapstructure:"sample_rate"` // Hz
	Overflow   string            `yaml:"overflow" mapstructure:"overflow"`       // overwrite-oldest or drop-newest
	Synthetic  SyntheticSettings `yaml:"synthetic" mapstructure:"synthetic"`
	Playback   PlaybackSettings  `yaml:"playback" mapstructure:"playback"`
}

// SyntheticSettings shapes the generated test signal
type SyntheticSettings struct {
	Amplitude float64 `yaml:"amplitude" mapstructure:"amplitude"` // µV
	Noise     float64 `yaml:"noise" mapstructure:"noise"`         // gaussian std dev, µV
	Seed      int64   `yaml:"seed" mapstructure:"seed"`           // 0 = time based
}

// PlaybackSettings configures replay of a recorded session file
type PlaybackSettings struct {
	File string `yaml:"file" mapstructure:"file"`
	// Dir is the only place API clients may pick recordings from. Empty
	// disables playback sessions over the API.
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Loop     bool   `yaml:"loop" mapstructure:"loop"`
	Realtime bool   `yaml:"realtime" mapstructure:"realtime"` // pace rows at the sample rate
}

// TelemetrySettings controls the Prometheus endpoint
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// APISettings controls the HTTP control API
type APISettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// JournalSettings controls the sqlite session journal
type JournalSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// MQTTSettings controls lifecycle event publishing
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Retain   bool   `yaml:"retain" mapstructure:"retain"`
}

// SentrySettings controls error telemetry
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and BIOSIGNAL_* environment variables.
// An empty configFile searches the default config paths; a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "bind_env").
			Build()
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Info("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileParsing).
			Context("config_file", configFile).
			Build()
	}

	GetLogger().Debug("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "get-home-directory").
			Build()
	}

	if runtime.GOOS == "windows" {
		return []string{".", filepath.Join(homeDir, "AppData", "Roaming", "biosignal-go")}, nil
	}
	return []string{".", filepath.Join(homeDir, ".config", "biosignal-go"), "/etc/biosignal-go"}, nil
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temp file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	const configPermissions = 0o600 // may hold mqtt and sentry credentials
	if err := os.Chmod(tempName, configPermissions); err != nil {
		return fmt.Errorf("error setting config permissions: %w", err)
	}
	if err := os.Rename(tempName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// GetLogger returns the config module logger from the current global logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
