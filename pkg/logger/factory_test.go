package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/visitrack/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Run("creates JSON logger", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		require.NotNil(t, log)
		log.Info("hello")
		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text formatter option", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithTextFormatter())
		log.Info("hello")
		assert.Contains(t, buf.String(), "level=INFO")
	})

	t.Run("static attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "test")))
		log.Info("msg")
		assert.Equal(t, "test", decode(t, buf)["svc"])
	})

	t.Run("context value", func(t *testing.T) {
		type key struct{}
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithContextValue("request_id", key{}))
		log.InfoContext(context.WithValue(context.Background(), key{}, "r-1"), "msg")
		assert.Equal(t, "r-1", decode(t, buf)["request_id"])
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() {
			logger.New(logger.WithFormat(logger.Format("xml")))
		})
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("development uses text and debug", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.NewFromConfig(logger.Config{Service: "visitrack", Env: "development"}, logger.WithOutput(buf))
		log.Debug("msg")
		out := buf.String()
		assert.Contains(t, out, "level=DEBUG")
		assert.Contains(t, out, "service=visitrack")
	})

	t.Run("production uses json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.NewFromConfig(logger.Config{Service: "visitrack", Env: "prod"}, logger.WithOutput(buf))
		log.Debug("hidden")
		assert.Empty(t, buf.String())
		log.Info("msg")
		entry := decode(t, buf)
		assert.Equal(t, "visitrack", entry["service"])
		assert.Equal(t, "prod", entry["env"])
	})

	t.Run("explicit level wins", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.NewFromConfig(logger.Config{Env: "production", Level: "warn"}, logger.WithOutput(buf))
		log.Info("hidden")
		assert.Empty(t, buf.String())
		log.Warn("shown")
		assert.Equal(t, "shown", decode(t, buf)["msg"])
	})
}

func TestDiscard(t *testing.T) {
	log := logger.Discard()
	require.NotNil(t, log)
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}
