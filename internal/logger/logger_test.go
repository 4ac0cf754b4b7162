package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosignal-go/internal/logger"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     logger.LogLevel
		logFunc   func(l logger.Logger, msg string)
		wantEntry bool
	}{
		{"debug hidden at info", logger.LogLevelInfo, func(l logger.Logger, m string) { l.Debug(m) }, false},
		{"info shown at info", logger.LogLevelInfo, func(l logger.Logger, m string) { l.Info(m) }, true},
		{"trace shown at trace", logger.LogLevelTrace, func(l logger.Logger, m string) { l.Trace(m) }, true},
		{"warn hidden at error", logger.LogLevelError, func(l logger.Logger, m string) { l.Warn(m) }, false},
		{"error always at error", logger.LogLevelError, func(l logger.Logger, m string) { l.Error(m) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			l := logger.NewSlogLogger(&buf, tt.level, time.UTC)
			tt.logFunc(l, "probe message")

			assert.Equal(t, tt.wantEntry, strings.Contains(buf.String(), "probe message"))
		})
	}
}

func TestTraceLevelRenderedAsTrace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.NewSlogLogger(&buf, logger.LogLevelTrace, time.UTC)
	l.Trace("frame pushed", logger.Uint64("sequence", 42))

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "sequence=42")
}

func TestModuleAndFieldAccumulation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := logger.NewSlogLogger(&buf, logger.LogLevelDebug, time.UTC)

	sessionLog := base.Module("acquisition").Module("session").With(logger.String("session_id", "s-1"))
	sessionLog.Info("state changed", logger.String("to", "streaming"), logger.Float64("rate", 250.123456))

	out := buf.String()
	assert.Contains(t, out, "module=acquisition.session")
	assert.Contains(t, out, "session_id=s-1")
	assert.Contains(t, out, "to=streaming")
	assert.Contains(t, out, "rate=250.123")

	// parent is unaffected by With on the child
	buf.Reset()
	base.Info("plain")
	assert.NotContains(t, buf.String(), "session_id")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "req-7")
	l.WithContext(ctx).Info("handled")
	assert.Contains(t, buf.String(), "trace_id=req-7")

	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestErrorFieldNil(t *testing.T) {
	t.Parallel()

	f := logger.Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
}

func TestCentralLoggerFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"boards": "error"},
	})
	require.NoError(t, err)

	cl.Module("acquisition").Info("session prepared", logger.Int("channels", 4))
	cl.Module("boards").Info("suppressed by module level")
	require.NoError(t, cl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 1)
	assert.Equal(t, "session prepared", lines[0]["msg"])
	assert.Equal(t, "acquisition", lines[0]["module"])
	assert.InDelta(t, 4, lines[0]["channels"], 0)
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestBufferedFileWriterCloseTwice(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "w.log")
	w, err := logger.NewBufferedFileWriter(path, logger.WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	require.ErrorIs(t, err, os.ErrClosed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
