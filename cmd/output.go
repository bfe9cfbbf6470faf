package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/kartei/pkg/client"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()

	greenCheck = color.GreenString("✔")
	redCross   = color.RedString("✘")
)

// BeQuietError signals that the error was already reported to the user.
type BeQuietError struct{}

func (BeQuietError) Error() string {
	return "error already reported"
}

func logSuccess(format string, args ...any) {
	log.Info().Msgf("%s %s", greenCheck, fmt.Sprintf(format, args...))
}

// logError reports a failed remote operation including the correlation ID
// and the structured API error details, then returns a BeQuietError.
func logError(err error, correlation, msg string) error {
	log.Error().Msgf("%s %s", redCross, msg)
	if correlation != "" {
		log.Error().Msgf("  correlation ID: %s", correlation)
	}

	var apiErr client.APIError
	if errors.As(err, &apiErr) {
		log.Error().Msgf("  %s (%s, HTTP %d)", apiErr.Message, apiErr.Code, apiErr.StatusCode)
		for k, v := range apiErr.Details {
			log.Error().Msgf("  %s: %v", k, v)
		}
	} else {
		log.Error().Msgf("  error: %v", err)
	}
	if errors.Is(err, client.ErrInvalidSession) {
		log.Error().Msgf("  run '%s' to store a valid session token", color.CyanString("kartei login"))
	}
	return BeQuietError{}
}

func applyTableFormat(t table.Writer) {
	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
