package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("test", &buf, WARN)

	logger.Debug("скрыто %d", 1)
	logger.Info("скрыто %d", 2)
	logger.Warn("видно %d", 3)
	logger.Error("видно %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[WARN] [test] видно 3")
	assert.Contains(t, out, "[ERROR] [test] видно 4")
}

func TestLogger_DefaultSwap(t *testing.T) {
	var buf bytes.Buffer
	prev := current()
	SetDefaultLogger(NewWriterLogger("swap", &buf, TRACE))
	defer SetDefaultLogger(prev)

	Trace("t")
	Info("hello %s", "world")
	LogPositionChange(7, "overworld(0.00, 0.00, 0.00)", "nether(1.00, 0.00, 0.00)")

	out := buf.String()
	assert.Contains(t, out, "[TRACE] [swap] t")
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "User 7 movement")
}

func TestNewLogger_File(t *testing.T) {
	prevDir := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prevDir }()

	logger, err := NewLogger("file")
	require.NoError(t, err)
	logger.SetLevels(ERROR+1, DEBUG)
	logger.Debug("в файл")
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(LogDir, "file_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[DEBUG] [file] в файл"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, TRACE, ParseLevel("trace"))
	assert.Equal(t, DEBUG, ParseLevel(" Debug "))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestLoggerManager(t *testing.T) {
	prevDir := LogDir
	LogDir = ""
	defer func() { LogDir = prevDir }()

	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	a, err := lm.GetLogger("b-comp")
	require.NoError(t, err)
	again, err := lm.GetLogger("b-comp")
	require.NoError(t, err)
	assert.Same(t, a, again)

	lm.MustGetLogger("a-comp")
	assert.Equal(t, []string{"a-comp", "b-comp"}, lm.ListComponents())

	assert.NoError(t, lm.SetLogLevel("a-comp", DEBUG, DEBUG))
	assert.Error(t, lm.SetLogLevel("missing", DEBUG, DEBUG))

	assert.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}

func TestSetDefaultLevels(t *testing.T) {
	prevDir := LogDir
	LogDir = ""
	defer func() { LogDir = prevDir }()
	defer SetDefaultLevels(INFO)

	SetDefaultLevels(WARN)

	logger, err := NewLogger("levels")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.consoleLogger = log.New(&buf, "", 0)
	logger.Info("скрыто")
	logger.Warn("видно")

	assert.NotContains(t, buf.String(), "скрыто")
	assert.Contains(t, buf.String(), "видно")
}
