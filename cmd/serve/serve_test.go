package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/buildinfo"
	"github.com/tphakala/biosignal-go/internal/conf"
	"github.com/tphakala/biosignal-go/internal/journal"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Acquisition: conf.AcquisitionSettings{
			DeviceID:   "synthetic-0",
			Board:      conf.BoardSynthetic,
			Capacity:   500,
			Channels:   4,
			SampleRate: 250,
			Overflow:   conf.OverflowOverwriteOldest,
		},
		API:     conf.APISettings{Enabled: true, Listen: "127.0.0.1:0"},
		Journal: conf.JournalSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "journal.db")},
	}
}

func waitForAddr(t *testing.T, svc *service) string {
	t.Helper()
	var addr string
	require.Eventually(t, func() bool {
		addr = svc.api.Addr()
		return addr != ""
	}, 5*time.Second, 10*time.Millisecond)
	return addr
}

func TestServiceAutostartAndShutdown(t *testing.T) {
	settings := testSettings(t)
	svc, err := newService(settings, buildinfo.NewContext("test", "", "node"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- svc.run(ctx, true) }()

	addr := waitForAddr(t, svc)

	var sessions []acquisition.SessionStats
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/sessions")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		sessions = nil
		if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
			return false
		}
		return len(sessions) == 1 && sessions[0].State == acquisition.StateStreaming
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "synthetic-0", sessions[0].DeviceID)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Zero(t, svc.registry.Len())

	j, err := journal.Open(settings.Journal.Path)
	require.NoError(t, err)
	defer j.Close()

	records, err := j.List(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "synthetic-0", records[0].DeviceID)
	assert.Equal(t, acquisition.StateReleased.String(), records[0].State)
	assert.NotNil(t, records[0].StartedAt)
}

func TestServiceWithoutServersStopsOnCancel(t *testing.T) {
	settings := testSettings(t)
	settings.API.Enabled = false
	settings.Journal.Enabled = false

	svc, err := newService(settings, nil)
	require.NoError(t, err)
	assert.Nil(t, svc.api)
	assert.Nil(t, svc.journal)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.run(ctx, false))
}

func TestNewServiceRejectsBadOverflow(t *testing.T) {
	settings := testSettings(t)
	settings.Journal.Enabled = false
	settings.Acquisition.Overflow = "drop-everything"

	_, err := newService(settings, nil)
	require.Error(t, err)
}

func TestServiceAPIListenFailure(t *testing.T) {
	settings := testSettings(t)
	settings.Journal.Enabled = false
	settings.API.Listen = "127.0.0.1:-1"

	svc, err := newService(settings, nil)
	require.NoError(t, err)
	assert.Error(t, svc.run(t.Context(), false))
}
