package logging

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryCapturesComponentLoggers(t *testing.T) {
	l, err := New(&Config{Level: LevelDebug, MaxHistory: 3})
	require.NoError(t, err)
	defer l.Close()

	log := l.Component("visemes")
	log.Debug().Msg("one")
	log.Warn().Err(errors.New("bad batch")).Msg("two")
	log.Info().Msg("three")

	h := l.GetHistory(0)
	require.Len(t, h, 3, "history is capped")
	assert.Equal(t, "two", h[1].Message)
	assert.Equal(t, "warn", h[1].Level)
	assert.Equal(t, "visemes", h[1].Component)
	assert.Equal(t, "bad batch", h[1].Error)

	last := l.GetHistory(1)
	require.Len(t, last, 1)
	assert.Equal(t, "three", last[0].Message)
}

func TestLevelFilters(t *testing.T) {
	l, err := New(&Config{Level: LevelWarn})
	require.NoError(t, err)

	log := l.Component("session")
	log.Info().Msg("hidden")
	log.Error().Msg("shown")

	h := l.GetHistory(0)
	require.Len(t, h, 1)
	assert.Equal(t, "shown", h[0].Message)
}

func TestLogFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{LogDir: dir})
	require.NoError(t, err)
	log := l.Component("loop")
	log.Info().Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.GetLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"app":"talkinghead"`)
}

func TestHistoryHandler(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo})
	require.NoError(t, err)
	log := l.Component("transport")
	log.Info().Msg("connected")

	rec := httptest.NewRecorder()
	l.HistoryHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/logs?limit=1", nil))

	var entries []LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "connected", entries[0].Message)
}
