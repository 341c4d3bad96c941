package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	fileOnce   sync.Once
	fileShared *fileSink

	stderrOnce   sync.Once
	stderrShared *fileSink
)

type fileSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
}

// fileLogger writes component-tagged lines to a shared sink.
type fileLogger struct {
	sink      *fileSink
	component string
	level     Level
}

func sharedSink() *fileSink {
	fileOnce.Do(func() {
		fileShared = &fileSink{}
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		path := filepath.Join(home, "pilot-debug.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		fileShared.file = f
		fileShared.logger = log.New(f, "", 0)
	})
	return fileShared
}

func stderrSink() *fileSink {
	stderrOnce.Do(func() {
		stderrShared = &fileSink{logger: log.New(os.Stderr, "", 0)}
	})
	return stderrShared
}

// NewComponentLogger returns the default application logger scoped to a
// component: pilot-debug.log in the user's home directory, and with DEBUG=true
// a debug-level fan-out to stderr as well.
func NewComponentLogger(component string) Logger {
	if os.Getenv("DEBUG") != "true" {
		return &fileLogger{sink: sharedSink(), component: component, level: LevelInfo}
	}
	return Multi(
		&fileLogger{sink: sharedSink(), component: component, level: LevelDebug},
		&fileLogger{sink: stderrSink(), component: component, level: LevelDebug},
	)
}

func (l *fileLogger) write(level Level, tag, format string, args ...any) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("%s [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"), tag, l.component,
		fmt.Sprintf(format, args...))
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.logger != nil {
		l.sink.logger.Println(line)
	}
}

func (l *fileLogger) Debug(format string, args ...any) { l.write(LevelDebug, "DEBUG", format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.write(LevelInfo, "INFO", format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.write(LevelWarn, "WARN", format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.write(LevelError, "ERROR", format, args...) }
