package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type RunnableTask struct {
	Name     string
	Schedule string
	Handler  TaskFunc
	Timeout  time.Duration

	observe Observer
	entryID cron.EntryID

	mu           sync.RWMutex
	running      bool
	lastRun      time.Time
	lastResult   string
	lastDuration time.Duration
	runs         int
	failures     int
	logs         []LogEntry
}

// begin marks the task as running. It fails if a run is already in progress.
func (t *RunnableTask) begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyRunning
	}
	t.running = true
	t.logs = make([]LogEntry, 0)
	return nil
}

// Run is the cron entry point. Overlapping scheduled runs are skipped.
func (t *RunnableTask) Run() {
	if err := t.begin(); err != nil {
		log.Warn().Str("task", t.Name).Msg("task is already running, skipping execution")
		return
	}
	t.execute(context.Background())
}

// execute runs the handler. The caller must have called begin.
func (t *RunnableTask) execute(parent context.Context) {
	l := log.With().Str("task", t.Name).Logger()
	logger := newRunLogger(t, l)
	logger.Info("starting task execution")

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	err := t.Handler(ctx, logger)
	duration := time.Since(start)

	t.mu.Lock()
	t.running = false
	t.lastRun = time.Now()
	t.lastDuration = duration
	t.runs++
	if err != nil {
		t.failures++
		t.lastResult = fmt.Sprintf("failed: %v", err)
	} else {
		t.lastResult = ResultSuccess
	}
	t.mu.Unlock()

	if err != nil {
		logger.Error("task failed after %s: %v", duration, err)
	} else {
		logger.Info("task completed successfully in %s", duration)
	}
	if t.observe != nil {
		t.observe(t.Name, duration, err)
	}
}

func (t *RunnableTask) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TaskStatus{
		Name:         t.Name,
		Schedule:     t.Schedule,
		Running:      t.running,
		LastRun:      t.lastRun,
		LastResult:   t.lastResult,
		LastDuration: t.lastDuration,
		Runs:         t.runs,
		Failures:     t.failures,
	}
}

func (t *RunnableTask) GetLogs() []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cpy := make([]LogEntry, len(t.logs))
	copy(cpy, t.logs)
	return cpy
}

// AppendLog adds an entry to the buffer of the current run, dropping the oldest
// entries beyond MaxLogsPerTask.
func (t *RunnableTask) AppendLog(level, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logs = append(t.logs, LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
	})
	if over := len(t.logs) - MaxLogsPerTask; over > 0 {
		t.logs = t.logs[over:]
	}
}
