package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const MaxLogsPerTask = 1000

// DefaultTimeout bounds a single task execution.
const DefaultTimeout = 5 * time.Minute

type Manager struct {
	cron    *cron.Cron
	timeout time.Duration
	observe Observer

	mu    sync.RWMutex
	tasks map[string]*RunnableTask
}

type Option func(*Manager)

// WithTimeout overrides DefaultTimeout for every task registered afterwards.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithObserver registers a callback that is invoked after each run.
func WithObserver(fn Observer) Option {
	return func(m *Manager) {
		m.observe = fn
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		cron:    cron.New(),
		timeout: DefaultTimeout,
		tasks:   make(map[string]*RunnableTask),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a task. A non-empty schedule (standard cron syntax or
// descriptors like "@every 10m") runs it periodically once the manager is started;
// every task can be triggered manually.
func (m *Manager) Register(name, schedule string, fn TaskFunc) error {
	task := &RunnableTask{
		Name:     name,
		Schedule: schedule,
		Handler:  fn,
		Timeout:  m.timeout,
		observe:  m.observe,
		logs:     make([]LogEntry, 0),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[name]; exists {
		return fmt.Errorf("task '%s' is already registered", name)
	}
	if schedule != "" {
		id, err := m.cron.AddFunc(schedule, task.Run)
		if err != nil {
			return fmt.Errorf("invalid schedule for task '%s': %w", name, err)
		}
		task.entryID = id
	}
	m.tasks[name] = task
	return nil
}

// Start runs the scheduler in the background.
func (m *Manager) Start() {
	m.cron.Start()
}

// Stop halts the scheduler and waits for running scheduled jobs or ctx.
func (m *Manager) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) get(name string) (*RunnableTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[name]
	if !ok {
		return nil, TaskNotFoundError{Name: name}
	}
	return task, nil
}

// Trigger starts a run in the background. It returns ErrAlreadyRunning
// instead of queueing a second run.
func (m *Manager) Trigger(name string) error {
	task, err := m.get(name)
	if err != nil {
		return err
	}
	if err := task.begin(); err != nil {
		return err
	}
	go task.execute(context.Background())
	return nil
}

// RunNow executes the task synchronously. Cancelling ctx cancels the run.
func (m *Manager) RunNow(ctx context.Context, name string) error {
	task, err := m.get(name)
	if err != nil {
		return err
	}
	if err := task.begin(); err != nil {
		return err
	}
	task.execute(ctx)
	return nil
}

func (m *Manager) ListStatus() []TaskStatus {
	m.mu.RLock()
	list := make([]TaskStatus, 0, len(m.tasks))
	for _, task := range m.tasks {
		status := task.Status()
		if task.entryID != 0 {
			status.NextRun = m.cron.Entry(task.entryID).Next
		}
		list = append(list, status)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Status returns the status of a single task.
func (m *Manager) Status(name string) (TaskStatus, error) {
	task, err := m.get(name)
	if err != nil {
		return TaskStatus{}, err
	}
	status := task.Status()
	if task.entryID != 0 {
		status.NextRun = m.cron.Entry(task.entryID).Next
	}
	return status, nil
}

func (m *Manager) GetLogs(name string) ([]LogEntry, error) {
	task, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return task.GetLogs(), nil
}
