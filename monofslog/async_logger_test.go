package monofslog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestAsyncLoggerWriteAndClose(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	a := NewAsyncLogger(lj, 10)

	fmt.Fprintln(a, "message 1")
	fmt.Fprintln(a, "message 2")
	fmt.Fprintln(a, "message 3")
	require.NoError(t, a.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "message 1\nmessage 2\nmessage 3\n", string(content))
}

func TestAsyncLoggerDropsWhenBufferFull(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	a := NewAsyncLogger(lj, 1)

	for i := 0; i < 50; i++ {
		fmt.Fprintf(a, "message %d\n", i)
	}
	require.NoError(t, a.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(content), 50*len("message 49\n"))
}
