package tasks

import (
	"github.com/rs/zerolog"

	"github.com/darmiel/kartei/internal/logging"
)

// newRunLogger logs to zerolog first and then into the log buffer of the task.
func newRunLogger(task *RunnableTask, zlog zerolog.Logger) *logging.LineLogger {
	return logging.NewLineLogger(
		logging.ZerologSink(zlog),
		func(level logging.Level, msg string) {
			task.AppendLog(string(level), msg)
		},
	)
}
