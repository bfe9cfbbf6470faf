package tasks

import (
	"context"
	"time"

	"github.com/darmiel/kartei/internal/logging"
)

// TaskFunc is the unit of work. The logger writes to zerolog and to the
// per-task log buffer served by the admin API.
type TaskFunc func(ctx context.Context, logger logging.InternalLogger) error

// ResultSuccess is the LastResult of a run that returned no error.
const ResultSuccess = "success"

type TaskStatus struct {
	Name         string        `json:"name,omitempty"`
	Schedule     string        `json:"schedule,omitempty"`
	Running      bool          `json:"running,omitempty"`
	LastRun      time.Time     `json:"last_run"`
	LastResult   string        `json:"last_result,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	NextRun      time.Time     `json:"next_run"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Observer is notified after every finished run, e.g. to record metrics.
type Observer func(name string, d time.Duration, err error)
