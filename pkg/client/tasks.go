package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darmiel/kartei/internal/api"
	"github.com/darmiel/kartei/internal/tasks"
)

// ErrUnknownTask is returned when the server does not list the requested task.
var ErrUnknownTask = errors.New("task is not registered on the server")

// DefaultTaskPollInterval is used by RunTask when no interval is given.
const DefaultTaskPollInterval = time.Second

// ListTasks returns the status of every background task. Admin only.
func (c *Client) ListTasks(ctx context.Context) ([]tasks.TaskStatus, error) {
	var res []tasks.TaskStatus
	_, err := c.get(ctx, c.url().
		setPath(api.ListTasksRoute).
		build(), &res)
	return res, err
}

// Task looks up a single task by name in the task list.
func (c *Client) Task(ctx context.Context, name string) (*tasks.TaskStatus, error) {
	list, err := c.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Name == name {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnknownTask, name)
}

// TriggerTask starts a run of the named task on the server.
func (c *Client) TriggerTask(ctx context.Context, name string) error {
	var res api.TriggerTaskResponse
	_, err := c.post(ctx, c.url().
		setPath(api.TriggerTaskRoute).
		setPathParam("name", name).
		build(), nil, &res)
	if err != nil {
		return err
	}
	if res.Status != api.TaskTriggeredStatus {
		return fmt.Errorf("unexpected response status: %s", res.Status)
	}
	return nil
}

// RunTask triggers the named task and polls until that run has finished
// or ctx is done.
func (c *Client) RunTask(ctx context.Context, name string, interval time.Duration) (*tasks.TaskStatus, error) {
	if interval <= 0 {
		interval = DefaultTaskPollInterval
	}
	before, err := c.Task(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := c.TriggerTask(ctx, name); err != nil {
		return nil, err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		status, err := c.Task(ctx, name)
		if err != nil {
			return nil, err
		}
		if !status.Running && status.Runs > before.Runs {
			return status, nil
		}
	}
}

// GetTaskLogs returns the log buffer of the last run of a task.
func (c *Client) GetTaskLogs(ctx context.Context, name string) ([]tasks.LogEntry, error) {
	var res []tasks.LogEntry
	_, err := c.get(ctx, c.url().
		setPath(api.LogsForTaskRoute).
		setPathParam("name", name).
		build(), &res)
	return res, err
}
