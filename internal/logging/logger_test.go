package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
	saved int
}

func (s *LoggerTestSuite) SetupTest() {
	s.saved = Level()
}

func (s *LoggerTestSuite) TearDownTest() {
	SetLevel(s.saved)
}

func (s *LoggerTestSuite) TestLevelFilter() {
	var out bytes.Buffer
	l := New("engine", &out)

	SetLevel(LevelWarn)
	l.Infof("hidden %d", 1)
	l.Debugf("hidden")
	l.Tracef("hidden")
	s.Equal(0, out.Len())

	l.Warnf("shown %s", "warn")
	l.Errorf("shown %s", "error")
	l.Error("plain error")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	s.Require().Len(lines, 3)
	s.Contains(lines[0], "Warn")
	s.Contains(lines[0], "engine")
	s.Contains(lines[0], "shown warn")
	s.Contains(lines[0], "logger_test.go")
	s.Contains(lines[1], "Error")
	s.Contains(lines[2], "plain error")
}

func (s *LoggerTestSuite) TestLogColor() {
	SetLevel(LevelTrace)
	var out bytes.Buffer
	l := New("", &out)
	l.Tracef("this is tracef %s", "hello world")
	l.Debugf("this is debugf %s", "hello world")
	l.Infof("this is infof %s", "hello world")
	s.Contains(out.String(), magenta)
	s.Contains(out.String(), green)
	s.Contains(out.String(), blue)
}

func (s *LoggerTestSuite) TestSetLevelIgnoresOutOfRange() {
	SetLevel(LevelInfo)
	SetLevel(LevelNoPrint + 1)
	SetLevel(-1)
	s.Equal(LevelInfo, Level())

	SetLevel(LevelNoPrint)
	var out bytes.Buffer
	New("x", &out).Errorf("nothing")
	s.Equal(0, out.Len())
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
