package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/pkg/client"
)

var artifactStudent string

var artifactCmd = &cobra.Command{
	Use:     "artifact",
	Aliases: []string{"artifacts"},
	Short:   "Request and download ID cards and certificates",
}

var artifactRequestCmd = &cobra.Command{
	Use:   "request COURSE KIND",
	Short: "Generate the current card or certificate",
	Long: `Renders a new artifact and replaces the previous one. Cards take a fresh
portrait with --photo; without it the previous or the profile portrait is used.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID := args[0]
		kind, err := core.ParseKind(args[1])
		if err != nil {
			return err
		}
		photoPath, _ := cmd.Flags().GetString("photo")
		completionDate, _ := cmd.Flags().GetString("completion-date")
		output, _ := cmd.Flags().GetString("output")

		opts := client.RequestArtifactOptions{
			StudentID:      artifactStudent,
			CompletionDate: completionDate,
		}
		if photoPath != "" {
			if opts.Photo, err = os.ReadFile(photoPath); err != nil {
				return fmt.Errorf("reading photo: %w", err)
			}
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Info().Msgf("Requesting %s for %s...", kind, bold(courseID))
		artifact, correlation, err := cli.RequestArtifact(cmd.Context(), courseID, kind, opts)
		if err != nil {
			var notYet *client.NotYetAvailableError
			if errors.As(err, &notYet) {
				log.Warn().Msgf("%s is not available yet, come back in %s (on %s)",
					kind,
					color.YellowString("%d days", notYet.DaysRemaining),
					notYet.AvailableAt.Format(time.RFC1123))
				return BeQuietError{}
			}
			return logError(err, correlation, "failed to request artifact")
		}
		logSuccess("generated %s (version %d)", kind, artifact.Version)
		printArtifact(artifact)

		if output != "" {
			return downloadArtifact(cmd, cli, courseID, kind, output)
		}
		return nil
	},
}

var artifactGetCmd = &cobra.Command{
	Use:   "get COURSE KIND",
	Short: "Show the current artifact, optionally downloading its image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID := args[0]
		kind, err := core.ParseKind(args[1])
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")

		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		artifact, correlation, err := cli.GetArtifact(cmd.Context(), courseID, kind, artifactStudent)
		if err != nil {
			return logError(err, correlation, "failed to read artifact")
		}
		printArtifact(artifact)

		if output != "" {
			return downloadArtifact(cmd, cli, courseID, kind, output)
		}
		return nil
	},
}

func downloadArtifact(cmd *cobra.Command, cli *client.Client, courseID string, kind core.Kind, output string) error {
	data, _, err := cli.DownloadArtifact(cmd.Context(), courseID, kind, artifactStudent)
	if err != nil {
		return logError(err, "", "failed to download artifact image")
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	logSuccess("saved image to %s", bold(output))
	return nil
}

func printArtifact(a *core.Artifact) {
	fmt.Println(bold(fmt.Sprintf("\n── %s ──", a.ArtifactKey)))
	fmt.Printf("  %s:    %s\n", faint("Status"), a.Status)
	fmt.Printf("  %s:   %d\n", faint("Version"), a.Version)
	fmt.Printf("  %s: %s\n", faint("Generated"), a.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("  %s:    %s\n", faint("Render"), a.RenderedRef)
	if a.SourcePhotoRef != "" {
		fmt.Printf("  %s:     %s\n", faint("Photo"), a.SourcePhotoRef)
	}
}

func init() {
	rootCmd.AddCommand(artifactCmd)
	artifactCmd.AddCommand(artifactRequestCmd, artifactGetCmd)

	artifactCmd.PersistentFlags().StringVar(&artifactStudent, "student", "", "Act on behalf of this student (admin only)")

	artifactRequestCmd.Flags().String("photo", "", "Fresh portrait for cards (PNG or JPEG)")
	artifactRequestCmd.Flags().String("completion-date", "", "Completion date for certificates (YYYY-MM-DD)")
	artifactRequestCmd.Flags().StringP("output", "o", "", "Also download the rendered image to this file")

	artifactGetCmd.Flags().StringP("output", "o", "", "Download the rendered image to this file")
}
