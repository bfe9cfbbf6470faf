package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/composer"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/registry"
	"github.com/darmiel/kartei/internal/service"
)

var templateRenderCmd = &cobra.Command{
	Use:   "render KIND",
	Short: "Render a template file locally",
	Long: `Validates a template definition and renders it with sample values, without a
server. Values default to placeholders and can be set with --set name=value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := core.ParseKind(args[0])
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		background, _ := cmd.Flags().GetString("background")
		photoPath, _ := cmd.Flags().GetString("photo")
		output, _ := cmd.Flags().GetString("output")
		sets, _ := cmd.Flags().GetStringArray("set")

		if kind == core.KindCard && photoPath == "" {
			return fmt.Errorf("card previews need a portrait (use --photo)")
		}

		payload, err := readTemplateFile(file)
		if err != nil {
			return err
		}
		tpl := core.Template{
			CourseID:      "preview",
			Kind:          kind,
			BackgroundRef: background,
			Fields:        payload.Fields,
			PhotoSpec:     payload.PhotoSpec,
		}
		if err := registry.Validate(tpl); err != nil {
			return err
		}

		bg, err := os.ReadFile(background)
		if err != nil {
			return fmt.Errorf("reading background: %w", err)
		}
		var photo []byte
		if photoPath != "" {
			if photo, err = os.ReadFile(photoPath); err != nil {
				return fmt.Errorf("reading photo: %w", err)
			}
		}

		values, err := sampleValues(tpl, sets)
		if err != nil {
			return err
		}

		out, err := composer.New().Compose(composer.Input{
			Template:   tpl,
			Background: bg,
			Values:     values,
			Photo:      photo,
		})
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, out, 0o644); err != nil {
			return fmt.Errorf("writing render: %w", err)
		}
		logSuccess("rendered %s preview to %s", kind, bold(output))
		return nil
	},
}

// sampleValues fills every template field with a placeholder, then applies overrides.
func sampleValues(tpl core.Template, sets []string) (map[string]string, error) {
	today := time.Now().Format(service.DateLayout)
	defaults := map[string]string{
		core.FieldStudentName:      "Jane Doe",
		core.FieldIdentifierNumber: "0000000",
		core.FieldCourseName:       "Sample Course",
		core.FieldCompletionDate:   today,
		core.FieldIssueDate:        today,
	}

	values := make(map[string]string, len(tpl.Fields))
	for name := range tpl.Fields {
		if v, ok := defaults[name]; ok {
			values[name] = v
		} else {
			values[name] = name
		}
	}
	for _, set := range sets {
		name, value, ok := strings.Cut(set, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set '%s', expected name=value", set)
		}
		values[name] = value
	}
	return values, nil
}

func init() {
	templateCmd.AddCommand(templateRenderCmd)

	templateRenderCmd.Flags().StringP("file", "f", "", "Template definition (YAML or JSON)")
	templateRenderCmd.Flags().String("background", "", "Background image (PNG or JPEG)")
	templateRenderCmd.Flags().String("photo", "", "Portrait for card previews")
	templateRenderCmd.Flags().StringP("output", "o", "preview.png", "Output file")
	templateRenderCmd.Flags().StringArray("set", nil, "Field value override (name=value), repeatable")

	_ = templateRenderCmd.MarkFlagRequired("file")
	_ = templateRenderCmd.MarkFlagRequired("background")
}
