package tasks

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Trigger and RunNow while a run is in progress.
var ErrAlreadyRunning = errors.New("task is already running")

type TaskNotFoundError struct {
	Name string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task '%s' not found", e.Name)
}
