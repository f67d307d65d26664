package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	level := L.Logger.GetLevel()
	formatter := L.Logger.Formatter
	t.Cleanup(func() {
		L.Logger.SetLevel(level)
		L.Logger.Formatter = formatter
		L.Logger.SetOutput(os.Stderr)
	})
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	require.NotNil(t, entry)
	assert.Same(t, L.Logger, entry.Logger)
}

func TestWithFieldsAccumulates(t *testing.T) {
	ctx := WithFields(context.Background(), logrus.Fields{"kind": "skill"})
	ctx = WithFields(ctx, logrus.Fields{"name": "pdf"})

	entry := G(ctx)
	assert.Equal(t, "skill", entry.Data["kind"])
	assert.Equal(t, "pdf", entry.Data["name"])
}

func TestWithLoggerCustomEntry(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("component", "crawler")
	ctx := WithLogger(context.Background(), custom)

	assert.Equal(t, "crawler", G(ctx).Data["component"])
	assert.NotSame(t, L.Logger, G(ctx).Logger)
}

func TestConfigure(t *testing.T) {
	resetGlobal(t)

	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, L.Logger.Formatter)

	var buf bytes.Buffer
	SetOutput(&buf)
	G(context.Background()).WithField("path", "/tmp/x").Debug("wrote catalog")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "wrote catalog", line["message"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "/tmp/x", line["path"])

	require.NoError(t, Configure("", "text"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, L.Logger.Formatter)
}

func TestConfigureRejectsInvalid(t *testing.T) {
	resetGlobal(t)

	assert.Error(t, Configure("loud", "text"))
	assert.Error(t, Configure("info", "xml"))
}
