package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage student records in the configured database",
}

var recordsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import courses, enrollments and profiles from a YAML file",
	Long: `Writes the records of FILE into the database selected by --config.
Existing records with the same identifiers are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadServerConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver == "memory" {
			log.Warn().Msg("the in-memory database is discarded on exit, use 'serve --records' instead")
		}

		records, err := store.LoadRecords(args[0])
		if err != nil {
			return err
		}

		db, err := openPersistence(cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			_ = db.close()
		}()

		if err := records.Apply(cmd.Context(), db.records); err != nil {
			return err
		}
		logSuccess("imported %d courses, %d enrollments and %d profiles",
			len(records.Courses), len(records.Enrollments), len(records.Profiles))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsImportCmd)
}
