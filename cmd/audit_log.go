package cmd

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/pkg/client"
)

var auditLogOpts client.ListAuditsOpts

// auditLogCmd represents the audit log command
var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	Long: `Lists the most recent audit entries, newest first.
Use the filter flags to narrow down by action, caller or artifact key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		auditLogOpts.Limit = uint(limit)

		if cmd.Flags().Changed("granted") {
			granted, _ := cmd.Flags().GetBool("granted")
			auditLogOpts.Granted = &granted
		}

		kind, _ := cmd.Flags().GetString("kind")
		if kind != "" {
			parsed, err := core.ParseKind(kind)
			if err != nil {
				return err
			}
			auditLogOpts.Kind = parsed
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching audit log...")
		audits, correlation, err := cli.ListAudits(cmd.Context(), auditLogOpts)
		if err != nil {
			return logError(err, correlation, "failed to fetch audit log")
		}

		log.Info().Msgf("Retrieved %d audit entries", len(audits))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Time", "Action", "Caller", "Target", "Granted", "Outcome", "Correlation",
		})

		for _, e := range audits {
			status := color.GreenString("YES")
			if !e.Granted {
				status = color.RedString("NO")
			}

			sub := "(unknown)"
			if e.Caller != nil {
				sub = truncate(e.Caller.ID, 35)
			}

			target := e.CourseID
			if e.Kind != "" {
				target += "/" + string(e.Kind)
			}
			if e.StudentID != "" && (e.Caller == nil || e.StudentID != e.Caller.ID) {
				target = e.StudentID + "@" + target
			}

			outcome := e.Outcome
			if e.Error != "" {
				outcome += " " + faint(truncate(e.Error, 40))
			}

			t.AppendRow(table.Row{
				e.Time.Format(time.RFC3339),
				e.Action,
				bold(sub),
				target,
				status,
				outcome,
				faint(e.ID),
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().IntP("limit", "n", 25, "Number of audit entries to retrieve")
	auditLogCmd.Flags().StringVar(&auditLogOpts.Action, "action", "", "Only entries with this action (e.g. artifact.request)")
	auditLogCmd.Flags().StringVar(&auditLogOpts.CallerID, "caller", "", "Only entries of this caller")
	auditLogCmd.Flags().StringVar(&auditLogOpts.StudentID, "student", "", "Only entries targeting this student")
	auditLogCmd.Flags().StringVar(&auditLogOpts.CourseID, "course", "", "Only entries targeting this course")
	auditLogCmd.Flags().StringVar(&auditLogOpts.CorrelationID, "correlation", "", "Only the entry of this correlation ID")
	auditLogCmd.Flags().String("kind", "", "Only entries for this artifact kind (card, certificate)")
	auditLogCmd.Flags().Bool("granted", false, "Only granted (true) or denied (false) requests")
}
