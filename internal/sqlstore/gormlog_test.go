package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return &buf
}

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestGormLoggerLevels(t *testing.T) {
	query := func() (string, int64) { return "SELECT 1", 1 }
	gl := newGormLogger(gormlogger.Warn, time.Second)

	t.Run("query errors log at error", func(t *testing.T) {
		buf := captureLog(t)
		gl.Trace(context.Background(), time.Now(), query, context.Canceled)

		entries := logEntries(t, buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "error", entries[0]["level"])
		assert.Equal(t, "SQL query failed", entries[0]["msg"])
		assert.Equal(t, "SELECT 1", entries[0]["sql"])
		assert.Equal(t, "context canceled", entries[0]["error"])
	})

	t.Run("slow queries log at warning", func(t *testing.T) {
		buf := captureLog(t)
		gl.Trace(context.Background(), time.Now().Add(-2*time.Second), query, nil)

		entries := logEntries(t, buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "warning", entries[0]["level"])
		assert.Equal(t, "Slow SQL query", entries[0]["msg"])
	})

	t.Run("fast queries and missing records stay quiet", func(t *testing.T) {
		buf := captureLog(t)
		gl.Trace(context.Background(), time.Now(), query, nil)
		gl.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)
		assert.Empty(t, buf.String())
	})

	t.Run("silent mode drops errors", func(t *testing.T) {
		buf := captureLog(t)
		gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), query, errors.New("boom"))
		assert.Empty(t, buf.String())
	})
}
