package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c := Parse("reactor=debug, client=warn,error", "json")
	assert.Equal(t, slog.LevelError, c.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, c.LevelFor("reactor"))
	assert.Equal(t, slog.LevelWarn, c.LevelFor("client"))
	assert.Equal(t, slog.LevelError, c.LevelFor("pool"))
	assert.Equal(t, FormatJSON, c.Format)
}

func TestParseIgnoresGarbage(t *testing.T) {
	c := Parse("reactor=loud,,nonsense", "")
	assert.Equal(t, slog.LevelInfo, c.DefaultLevel)
	assert.Empty(t, c.SubsystemLevels)
	assert.Equal(t, FormatText, c.Format)
}

func TestLoggerSubsystemAttr(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	l := Logger("loggertest")
	require.Same(t, l, Logger("loggertest"))
	l.Warn("hello")
	assert.Contains(t, buf.String(), "subsystem=loggertest")
	assert.Contains(t, buf.String(), "hello")
}
