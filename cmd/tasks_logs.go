package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/tasks"
)

var tasksLogsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "See logs of the last run of a background task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if name == "" {
			return fmt.Errorf("task name cannot be empty")
		}
		tail, _ := cmd.Flags().GetInt("tail")

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Retrieving logs for task '%s'...", name)
		logs, err := cli.GetTaskLogs(cmd.Context(), name)
		if err != nil {
			return logError(err, "", "failed to retrieve task logs")
		}
		if tail > 0 && len(logs) > tail {
			logs = logs[len(logs)-tail:]
		}

		log.Info().Msgf("Logs for task '%s':", name)
		printTaskLogs(logs)
		return nil
	},
}

func printTaskLogs(logs []tasks.LogEntry) {
	fmt.Println("----------------------------------------")
	for _, entry := range logs {
		var level string
		switch entry.Level {
		case "info":
			level = color.GreenString("inf")
		case "warn":
			level = color.YellowString("wrn")
		case "error":
			level = color.RedString("err")
		default:
			level = faint(entry.Level)
		}
		fmt.Printf("%s | %s | %s\n", entry.Time.Format("15:04:05"), level, entry.Message)
	}
}

func init() {
	tasksCmd.AddCommand(tasksLogsCmd)

	tasksLogsCmd.Flags().IntP("tail", "n", 0, "Only show the last N entries")
}
