package logsvc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kikundi/core"
)

func newTestLogger(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	conf := &core.Config{Env: "TEST", AppName: "Kikundi", TestMode: true, LogLevel: level}
	return NewLogger(&buf, conf), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestLogger(t *testing.T) {
	logger, buf := newTestLogger(t, "debug")

	usr := core.LogUser{ID: "u1", Username: "ada", Email: "ada@kikundi.test"}
	logger.Error("sync failed", errors.New("boom"), map[string]interface{}{"course": "WEB-401"}, usr)

	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "sync failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "WEB-401", entry["course"])
	assert.Equal(t, "Kikundi", entry["app"])
	assert.Equal(t, map[string]interface{}{"id": "u1", "username": "ada"}, entry["user"])

	logger.Debug("details")
	assert.Equal(t, "debug", lastEntry(t, buf)["level"])
}

func TestLogger_level(t *testing.T) {
	logger, buf := newTestLogger(t, "warn")
	logger.Info("ignored")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", lastEntry(t, buf)["message"])
}

func TestLogger_Fatal(t *testing.T) {
	logger, buf := newTestLogger(t, "info")
	var code int
	logger.exit = func(c int) { code = c }

	logger.Fatal("cannot start")
	assert.Equal(t, 1, code)
	assert.Equal(t, "fatal", lastEntry(t, buf)["level"])
}
