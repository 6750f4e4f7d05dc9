package monofslog

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	textTraceString = `^time="[0-9/:. ]{26}" severity=TRACE message="TestLogs: trace"`
	textDebugString = `^time="[0-9/:. ]{26}" severity=DEBUG message="TestLogs: debug"`
	textInfoString  = `^time="[0-9/:. ]{26}" severity=INFO message="TestLogs: info"`
	textWarnString  = `^time="[0-9/:. ]{26}" severity=WARNING message="TestLogs: warn"`
	textErrorString = `^time="[0-9/:. ]{26}" severity=ERROR message="TestLogs: error"`
)

func redirectToBuffer(buf *bytes.Buffer, level Level) {
	v := &slog.LevelVar{}
	v.Set(slogLevel(level))
	defaultLoggerMu.Lock()
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, v, "TestLogs: "))
	defaultLoggerMu.Unlock()
}

func logAllLevels() {
	Tracef("trace")
	Debugf("debug")
	Infof("info")
	Warnf("warn")
	Errorf("error")
}

func TestLogLevelFiltersLowerSeverities(t *testing.T) {
	var buf bytes.Buffer
	redirectToBuffer(&buf, WARNING)

	logAllLevels()
	out := buf.String()

	assert.NotRegexp(t, regexp.MustCompile(textInfoString), out)
	assert.Regexp(t, regexp.MustCompile(textWarnString), out)
	assert.Regexp(t, regexp.MustCompile(textErrorString), out)
}

func TestLogLevelOffSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	redirectToBuffer(&buf, OFF)

	logAllLevels()

	assert.Empty(t, buf.String())
}

func TestLogLevelTraceLogsEverything(t *testing.T) {
	var buf bytes.Buffer
	redirectToBuffer(&buf, TRACE)

	logAllLevels()
	out := buf.String()

	assert.Regexp(t, regexp.MustCompile(textTraceString), out)
	assert.Regexp(t, regexp.MustCompile(textDebugString), out)
}

func TestJSONFormatLogs(t *testing.T) {
	var buf bytes.Buffer
	v := &slog.LevelVar{}
	v.Set(slogLevel(INFO))
	defaultLoggerMu.Lock()
	defaultLogger = slog.New(newLineHandler(&buf, v, "json", "TestLogs: "))
	defaultLoggerMu.Unlock()

	Infof("info")

	assert.Regexp(t, regexp.MustCompile(`^\{"timestamp":\{"seconds":\d+,"nanos":\d+\},"severity":"INFO","message":"TestLogs: info"\}`), buf.String())
}
