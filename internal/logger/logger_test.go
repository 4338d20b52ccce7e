package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerInitialization(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{name: "Valid DEBUG level", level: "DEBUG", want: logrus.DebugLevel},
		{name: "Valid INFO level", level: "INFO", want: logrus.InfoLevel},
		{name: "Valid WARN level", level: "WARN", want: logrus.WarnLevel},
		{name: "Valid ERROR level", level: "ERROR", want: logrus.ErrorLevel},
		{name: "Invalid level defaults to INFO", level: "INVALID", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(tt.level)
			assert.Equal(t, tt.want, GetLogger().Level)
		})
	}
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	Init("DEBUG")
	var buf bytes.Buffer
	SetOutput(&buf)

	WithFields(map[string]interface{}{
		"instance_id": "inst-1",
		"port":        8070,
	}).Info("deployment started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "deployment started", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "inst-1", entry["instance_id"])
	assert.EqualValues(t, 8070, entry["port"])
}

func TestLoggerWithError(t *testing.T) {
	Init("INFO")
	var buf bytes.Buffer
	SetOutput(&buf)

	WithError(errors.New("disk full")).Error("deployment failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "disk full", entry["error"])
	assert.Equal(t, "error", entry["level"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	Init("WARN")
	var buf bytes.Buffer
	SetOutput(&buf)

	Infof("hidden %d", 1)
	assert.Zero(t, buf.Len())

	Warnf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
}
