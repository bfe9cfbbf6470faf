package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/tasks"
)

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all background tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving tasks...")
		list, err := cli.ListTasks(cmd.Context())
		if err != nil {
			return logError(err, "", "failed to list tasks")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Schedule", "State", "Last Run", "Next Run", "Runs", "Last Result"})

		for _, task := range list {
			t.AppendRow(table.Row{
				bold(task.Name),
				taskSchedule(task),
				taskState(task),
				taskLastRun(task),
				taskNextRun(task),
				fmt.Sprintf("%d (%d failed)", task.Runs, task.Failures),
				taskResult(task),
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func taskSchedule(task tasks.TaskStatus) string {
	if task.Schedule == "" {
		return faint("manual")
	}
	return task.Schedule
}

func taskState(task tasks.TaskStatus) string {
	if task.Running {
		return color.BlueString("running")
	}
	return "idle"
}

func taskLastRun(task tasks.TaskStatus) string {
	if task.LastRun.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s ago %s",
		time.Since(task.LastRun).Round(time.Second),
		faint("("+task.LastDuration.Round(time.Millisecond).String()+")"))
}

func taskNextRun(task tasks.TaskStatus) string {
	if task.NextRun.IsZero() {
		return "n/a"
	}
	return "in " + time.Until(task.NextRun).Round(time.Second).String()
}

func taskResult(task tasks.TaskStatus) string {
	switch task.LastResult {
	case "":
		return ""
	case tasks.ResultSuccess:
		return greenCheck + " " + task.LastResult
	default:
		return redCross + " " + task.LastResult
	}
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
}
