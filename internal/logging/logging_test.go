package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":     DebugLevel,
		" INFO ":    InfoLevel,
		"Warn":      WarnLevel,
		"warning":   WarnLevel,
		"ERROR":     ErrorLevel,
		"fatal":     FatalLevel,
		"":          InfoLevel,
		"verbose":   InfoLevel,
		"trace-ish": InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestInitFillsDefaults(t *testing.T) {
	resetLogger(t)

	Init(Config{Level: InfoLevel})
	assert.Empty(t, GetLogFilePath())

	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, Output: &buf})
	Info().Msg("hidden")
	Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestComponentLogger(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, Output: &buf})

	log := Component("supervisor")
	log.Info().Str("session", "alpha").Msg("session connected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "supervisor", entry["component"])
	assert.Equal(t, "alpha", entry["session"])
	assert.Equal(t, "session connected", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestPrettyOutputIsNotJSON(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf, Pretty: true})

	Info().Str("session", "alpha").Msg("ready")

	out := buf.String()
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "alpha")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestLogToFile(t *testing.T) {
	resetLogger(t)
	dir := t.TempDir()
	var console bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &console, LogToFile: true, LogDir: dir})

	path := GetLogFilePath()
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "wamux-"))

	Info().Msg("to both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, console.String(), "to both")
}

func TestReinitClosesPreviousFile(t *testing.T) {
	resetLogger(t)
	dir := t.TempDir()
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	require.NotEmpty(t, GetLogFilePath())

	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}})
	assert.Empty(t, GetLogFilePath())

	Close()
	assert.Empty(t, GetLogFilePath())
}

func TestTail(t *testing.T) {
	resetLogger(t)
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: t.TempDir()})

	for i := 0; i < 7; i++ {
		Info().Int("n", i).Msg(fmt.Sprintf("line-%d", i))
	}

	lines, err := Tail(3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "line-4")
	assert.Contains(t, lines[2], "line-6")

	all, err := Tail(100)
	require.NoError(t, err)
	assert.Len(t, all, 7)

	none, err := Tail(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTailWithoutFile(t *testing.T) {
	resetLogger(t)
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}})

	_, err := Tail(10)
	assert.Error(t, err)
}
