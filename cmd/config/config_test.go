package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/biosignal-go/internal/conf"
)

func testSettings() *conf.Settings {
	return &conf.Settings{
		Acquisition: conf.AcquisitionSettings{
			DeviceID: "cap-1",
			Board:    conf.BoardSynthetic,
			Capacity: 1000,
			Overflow: conf.OverflowDropNewest,
		},
		MQTT:   conf.MQTTSettings{Broker: "tcp://broker:1883", Password: "hunter2"},
		Sentry: conf.SentrySettings{DSN: "https://key@sentry.example/1"},
	}
}

func run(t *testing.T, settings *conf.Settings, args ...string) conf.Settings {
	t.Helper()

	var out bytes.Buffer
	cmd := Command(settings)
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	var decoded conf.Settings
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	return decoded
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	got := run(t, settings)

	assert.Equal(t, "cap-1", got.Acquisition.DeviceID)
	assert.Equal(t, 1000, got.Acquisition.Capacity)
	assert.Equal(t, conf.OverflowDropNewest, got.Acquisition.Overflow)
	assert.Equal(t, redacted, got.MQTT.Password)
	assert.Equal(t, redacted, got.Sentry.DSN)

	// the shared settings are untouched
	assert.Equal(t, "hunter2", settings.MQTT.Password)
}

func TestConfigCommandShowSecrets(t *testing.T) {
	t.Parallel()

	got := run(t, testSettings(), "--show-secrets")
	assert.Equal(t, "hunter2", got.MQTT.Password)
	assert.Equal(t, "https://key@sentry.example/1", got.Sentry.DSN)
}

func TestRedactLeavesEmptyFields(t *testing.T) {
	t.Parallel()

	got := redact(conf.Settings{})
	assert.Empty(t, got.MQTT.Password)
	assert.Empty(t, got.Sentry.DSN)
}
