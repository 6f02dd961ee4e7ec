// Package zerolog adapts github.com/rs/zerolog to logger.Logger.
package zerolog

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/patternkit/patternkit/pkg/logger"
)

const (
	permission = 0664
)

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level sets the minimum level by name (debug, info, warn, error).
func (build *LogBuild) Level(name string) *LogBuild {
	if lvl, err := zerolog.ParseLevel(name); err == nil && name != "" {
		build.level = lvl
	}
	return build
}

// Make builds the logger. The returned closer releases the log file, if any.
func (build *LogBuild) Make() (*Logger, io.Closer, error) {
	writer := build.writer
	if writer == nil {
		writer = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if build.path != "" {
		file, err := os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, nil, err
		}
		writer = zerolog.SyncWriter(file)
		closer = file
	}

	zl := zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return &Logger{zl: zl}, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Logger implements logger.Logger on top of a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

var _ logger.Logger = (*Logger)(nil)

func (l *Logger) Error(msg string, args ...any) {
	withFields(l.zl.Error(), args).Msg(msg)
}

func (l *Logger) Warn(msg string, args ...any) {
	withFields(l.zl.Warn(), args).Msg(msg)
}

func (l *Logger) Info(msg string, args ...any) {
	withFields(l.zl.Info(), args).Msg(msg)
}

func (l *Logger) Debug(msg string, args ...any) {
	withFields(l.zl.Debug(), args).Msg(msg)
}

// withFields maps slog-style alternating key/value args onto the event.
// A trailing key without value is logged under "!BADKEY" like slog does.
func withFields(ev *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	return ev
}
