package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/eligibility"
	"github.com/darmiel/kartei/internal/service"
)

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility [COURSE]",
	Short: "Check when artifacts of a course become available",
	Long: `Asks the server when the student may request artifacts of COURSE.
With --enrolled-at and --delay the gate is evaluated locally instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enrolledAt, _ := cmd.Flags().GetString("enrolled-at")
		if enrolledAt != "" {
			delay, _ := cmd.Flags().GetInt("delay")
			return eligibilityLocally(enrolledAt, delay)
		}
		if len(args) != 1 {
			return fmt.Errorf("course is required for remote checks")
		}

		student, _ := cmd.Flags().GetString("student")
		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		view, correlation, err := cli.GetEligibility(cmd.Context(), args[0], student)
		if err != nil {
			return logError(err, correlation, "failed to check eligibility")
		}
		printEligibility(view.Eligible, view.AvailableAt, view.DaysRemaining)
		return nil
	},
}

func eligibilityLocally(enrolledAt string, delay int) error {
	at, err := time.Parse(time.RFC3339, enrolledAt)
	if err != nil {
		if at, err = time.Parse(service.DateLayout, enrolledAt); err != nil {
			return fmt.Errorf("invalid --enrolled-at, expected RFC 3339 or %s", service.DateLayout)
		}
	}
	res, err := eligibility.Evaluate(at, delay, time.Now())
	if err != nil {
		return err
	}
	printEligibility(res.Eligible, res.AvailableAt, res.DaysRemaining)
	return nil
}

func printEligibility(eligible bool, availableAt time.Time, daysRemaining int) {
	if eligible {
		logSuccess("artifacts are available since %s", availableAt.Format(time.RFC1123))
		return
	}
	fmt.Printf("%s available on %s, %s remaining\n",
		redCross, availableAt.Format(time.RFC1123), color.YellowString("%d days", daysRemaining))
}

func init() {
	rootCmd.AddCommand(eligibilityCmd)

	eligibilityCmd.Flags().String("student", "", "Check on behalf of this student (admin only)")
	eligibilityCmd.Flags().String("enrolled-at", "", "Evaluate locally for this enrollment time")
	eligibilityCmd.Flags().Int("delay", 0, "Unlock delay in days for local evaluation")
}
