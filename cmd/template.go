package cmd

import (
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/api"
	"github.com/darmiel/kartei/internal/core"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"tpl"},
	Short:   "Manage card and certificate templates",
}

var templateGetCmd = &cobra.Command{
	Use:   "get COURSE KIND",
	Short: "Show the template of a course",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := core.ParseKind(args[1])
		if err != nil {
			return err
		}
		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		tpl, correlation, err := cli.GetTemplate(cmd.Context(), args[0], kind)
		if err != nil {
			return logError(err, correlation, "failed to read template")
		}

		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			out, err := yaml.Marshal(api.TemplatePayload{
				BackgroundRef: tpl.BackgroundRef,
				Fields:        tpl.Fields,
				PhotoSpec:     tpl.PhotoSpec,
			})
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		}
		printTemplate(tpl)
		return nil
	},
}

var templatePutCmd = &cobra.Command{
	Use:   "put COURSE KIND",
	Short: "Replace the template of a course",
	Long: `Reads a template definition from a YAML or JSON file and replaces the stored
template. With --background the image is uploaded first and its reference is
used as background_ref.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID := args[0]
		kind, err := core.ParseKind(args[1])
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		background, _ := cmd.Flags().GetString("background")

		payload, err := readTemplateFile(file)
		if err != nil {
			return err
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		if background != "" {
			data, err := os.ReadFile(background)
			if err != nil {
				return fmt.Errorf("reading background: %w", err)
			}
			log.Info().Msgf("Uploading background %s...", background)
			ref, correlation, err := cli.UploadBackground(cmd.Context(), courseID, kind, data, http.DetectContentType(data))
			if err != nil {
				return logError(err, correlation, "failed to upload background")
			}
			payload.BackgroundRef = ref
		}

		tpl, correlation, err := cli.PutTemplate(cmd.Context(), courseID, kind, *payload)
		if err != nil {
			return logError(err, correlation, "failed to update template")
		}
		logSuccess("updated %s template of %s", kind, bold(courseID))
		printTemplate(tpl)
		return nil
	},
}

var templateBackgroundCmd = &cobra.Command{
	Use:   "background COURSE KIND FILE",
	Short: "Upload a background image without changing the template",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := core.ParseKind(args[1])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("reading background: %w", err)
		}
		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		ref, correlation, err := cli.UploadBackground(cmd.Context(), args[0], kind, data, http.DetectContentType(data))
		if err != nil {
			return logError(err, correlation, "failed to upload background")
		}
		logSuccess("uploaded background")
		fmt.Println(ref)
		return nil
	},
}

func readTemplateFile(path string) (*api.TemplatePayload, error) {
	if path == "" {
		return nil, fmt.Errorf("template file not specified (use --file)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template file: %w", err)
	}
	// YAML is a superset of JSON, so both formats decode here
	var payload api.TemplatePayload
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing template file: %w", err)
	}
	return &payload, nil
}

func printTemplate(tpl *core.Template) {
	fmt.Println(bold(fmt.Sprintf("\n── %s template of %s ──", tpl.Kind, tpl.CourseID)))
	fmt.Printf("  %s: %s\n", faint("Background"), tpl.BackgroundRef)
	if tpl.PhotoSpec != nil {
		ps := tpl.PhotoSpec
		fmt.Printf("  %s:      %dx%d at (%d,%d)\n", faint("Photo"), ps.Width, ps.Height, ps.X, ps.Y)
	}
	if tpl.UpdatedBy != "" {
		fmt.Printf("  %s:    %s by %s\n", faint("Updated"), tpl.UpdatedAt.Format("2006-01-02 15:04"), tpl.UpdatedBy)
	}

	names := make([]string, 0, len(tpl.Fields))
	for name := range tpl.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "Position", "Size", "Font", "Color", "Align"})
	for _, name := range names {
		spec := tpl.Fields[name]
		t.AppendRow(table.Row{
			bold(name),
			fmt.Sprintf("%d,%d", spec.X, spec.Y),
			spec.FontSize,
			spec.FontFamily,
			spec.Color,
			spec.Align,
		})
	}
	applyTableFormat(t)
	t.Render()
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateGetCmd, templatePutCmd, templateBackgroundCmd)

	templateGetCmd.Flags().Bool("yaml", false, "Print the template as YAML, ready for 'template put'")

	templatePutCmd.Flags().StringP("file", "f", "", "Template definition (YAML or JSON)")
	templatePutCmd.Flags().String("background", "", "Background image to upload (PNG or JPEG)")
	_ = templatePutCmd.MarkFlagRequired("file")
}
