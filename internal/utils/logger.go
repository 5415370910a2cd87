package utils

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu  sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// InitLogger sends logs to the console and, when file is set, to a rotating file.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
	}

	logMu.Lock()
	logger = zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
	logMu.Unlock()
}

// SetLogLevel changes the minimum level; unknown names fall back to info.
func SetLogLevel(level string) {
	logMu.Lock()
	logger = logger.Level(parseLevel(level))
	logMu.Unlock()
}

// SetLoggerForTest swaps the package logger.
func SetLoggerForTest(l zerolog.Logger) {
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func Debug(msg string, kv ...any) { write(zerolog.DebugLevel, msg, kv) }
func Info(msg string, kv ...any)  { write(zerolog.InfoLevel, msg, kv) }
func Warn(msg string, kv ...any)  { write(zerolog.WarnLevel, msg, kv) }
func Error(msg string, kv ...any) { write(zerolog.ErrorLevel, msg, kv) }

func write(level zerolog.Level, msg string, kv []any) {
	logMu.RLock()
	ev := logger.WithLevel(level)
	logMu.RUnlock()
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			ev = ev.Interface("dangling", kv[i])
			break
		}
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case fmt.Stringer:
			ev = ev.Str(key, v.String())
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
