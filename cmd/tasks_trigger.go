package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/tasks"
)

const taskPollInterval = 500 * time.Millisecond

var tasksTriggerCmd = &cobra.Command{
	Use:   "trigger NAME",
	Short: "Manually trigger a background task",
	Long: `Starts a run of the task on the server. With --wait the command blocks
until the run has finished and prints its logs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if name == "" {
			return fmt.Errorf("task name cannot be empty")
		}
		wait, _ := cmd.Flags().GetBool("wait")

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		if !wait {
			log.Debug().Msgf("Triggering task '%s'...", name)
			if err := cli.TriggerTask(cmd.Context(), name); err != nil {
				return logError(err, "", "failed to trigger task")
			}
			log.Info().Msgf("%s triggered task '%s' successfully.", greenCheck, bold(name))
			log.Info().Msgf("Run '%s' to see progress.", color.CyanString("kartei tasks logs "+name))
			return nil
		}

		log.Info().Msgf("Running task '%s'...", bold(name))
		status, err := cli.RunTask(cmd.Context(), name, taskPollInterval)
		if err != nil {
			return logError(err, "", "failed to run task")
		}
		logs, err := cli.GetTaskLogs(cmd.Context(), name)
		if err != nil {
			return logError(err, "", "failed to retrieve task logs")
		}
		printTaskLogs(logs)
		if status.LastResult != tasks.ResultSuccess {
			log.Error().Msgf("%s %s", redCross, status.LastResult)
			return BeQuietError{}
		}
		return nil
	},
}

func init() {
	tasksCmd.AddCommand(tasksTriggerCmd)

	tasksTriggerCmd.Flags().BoolP("wait", "w", false, "Wait for the run to finish and print its logs")
}
