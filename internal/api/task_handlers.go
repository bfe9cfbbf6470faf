package api

import (
	"errors"
	"net/http"

	"github.com/darmiel/kartei/internal/api/presenter"
	"github.com/darmiel/kartei/internal/tasks"
)

// handleListTasks responds with the list of tasks and their statuses.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := s.taskManager.ListStatus()
	presenter.JSON(w, r, status, http.StatusOK)
}

// TaskTriggeredStatus is the status of a TriggerTaskResponse for a started run.
const TaskTriggeredStatus = "triggered"

type TriggerTaskResponse struct {
	Status string `json:"status"`
}

func taskError(err error) error {
	var notFound tasks.TaskNotFoundError
	switch {
	case errors.As(err, &notFound):
		return httpStatus(http.StatusNotFound, err)
	case errors.Is(err, tasks.ErrAlreadyRunning):
		return httpStatus(http.StatusConflict, err)
	}
	return err
}

// handleTriggerTask runs a task in the background.
func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.taskManager.Trigger(name); err != nil {
		presenter.Err(w, r, taskError(err), "triggering task failed")
		return
	}
	presenter.JSON(w, r, TriggerTaskResponse{
		Status: TaskTriggeredStatus,
	}, http.StatusAccepted)
}

// handleLogsForTask retrieves logs for a specific task.
func (s *Server) handleLogsForTask(w http.ResponseWriter, r *http.Request) {
	logs, err := s.taskManager.GetLogs(r.PathValue("name"))
	if err != nil {
		presenter.Err(w, r, taskError(err), "reading task logs failed")
		return
	}
	presenter.JSON(w, r, logs, http.StatusOK)
}
