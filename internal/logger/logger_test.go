/**
 * Logger Tests
 *
 * Author: TradeImport Team
 * Created: 2025-02-11
 */

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerCreation(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		log := New(nil)
		assert.NotNil(t, log)
		assert.NotNil(t, log.config)
	})

	t.Run("CustomFields", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := New(&Config{
			Level:  "debug",
			Output: buf,
			Fields: map[string]interface{}{"app": "tradeimport"},
		})

		log.Info("queue loaded", "items", 3)

		lines := decodeLines(t, buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "info", lines[0]["level"])
		assert.Equal(t, "queue loaded", lines[0]["message"])
		assert.Equal(t, "tradeimport", lines[0]["app"])
		assert.Equal(t, float64(3), lines[0]["items"])
	})

	t.Run("InvalidLevelFallsBackToInfo", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := New(&Config{Level: "loud", Output: buf})
		log.Debug("hidden")
		log.Info("shown")
		lines := decodeLines(t, buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "shown", lines[0]["message"])
	})
}

func TestErrorLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "debug", Output: buf})

	log.Error(errors.New("endpoint unreachable"), "chunk failed", "chunk_index", 2)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "endpoint unreachable", lines[0]["error"])
	assert.Equal(t, float64(2), lines[0]["chunk_index"])
}

func TestOddFieldsIgnored(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "debug", Output: buf})

	log.Warn("odd", "key_only", 42, "dangling")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "dangling")
}

func TestChildLoggers(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "debug", Output: buf})

	child := log.With("component", "queue").With("item_id", "abc")
	child.Debug("selected")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "queue", lines[0]["component"])
	assert.Equal(t, "abc", lines[0]["item_id"])
}

func TestLogRequest(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Output: buf})

	log.LogRequest("GET", "/api/queue", 200, 5*time.Millisecond)
	log.LogRequest("POST", "/api/items/x/retry", 409, time.Millisecond)
	log.LogRequest("POST", "/upload", 503, time.Millisecond)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "error", lines[2]["level"])
	assert.Equal(t, float64(503), lines[2]["status"])
}

func TestGlobalLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(&Config{Level: "debug", Output: buf})
	defer Init(&Config{Level: "info", Output: os.Stderr})

	Global().Info("global", "k", "v")
	Global().With("component", "cli").Warn("child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "v", lines[0]["k"])
	assert.Equal(t, "cli", lines[1]["component"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error(errors.New("x"), "discarded")
	})
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tradeimport.log")

	fw, err := NewFileWriter(path, 64, 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := fw.Write([]byte(strings.Repeat("x", 30) + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, fw.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotation should produce a backup")
}

func TestPrettyLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Output: buf, Pretty: true, TimeFormat: "15:04:05"})
	log.Info("pretty line", "file", "clients.csv")

	out := buf.String()
	assert.Contains(t, out, "pretty line")
	assert.Contains(t, out, "clients.csv")
}
