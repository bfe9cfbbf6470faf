package cmd

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/buildinfo"
	"github.com/darmiel/kartei/internal/composer"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the Kartei installation",
	Long: `Without --addr the build of this binary and its bundled fonts are shown.
With --addr the server build is shown next to the local one, together with
the caller the configured token resolves to.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		local := buildinfo.GetBuildInfo()
		rows := []table.Row{
			{"Version", local.Version, ""},
			{"Commit", local.CommitHash, ""},
			{"Go", local.GoVersion, ""},
		}

		if f.RemoteAddr == "" {
			rows = append(rows, table.Row{"Fonts", strings.Join(composer.FontFamilies(), ", "), ""})
			renderInfo(rows, false)
			return nil
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		log.Debug().Msgf("Fetching build info from %s...", f.RemoteAddr)
		remote, correlation, err := cli.Info(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to get info from server")
		}
		rows[0][2] = remote.Version
		rows[1][2] = remote.CommitHash
		rows[2][2] = remote.GoVersion

		if caller, _, err := cli.WhoAmI(cmd.Context()); err == nil {
			rows = append(rows, table.Row{"Caller", "", caller.ID + faint(" ("+string(caller.Role)+")")})
		} else {
			log.Debug().Err(err).Msg("token does not resolve to a caller")
		}
		renderInfo(rows, true)

		if remote.Version != local.Version {
			log.Warn().Msgf("client %s and server %s differ", local.Version, remote.Version)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func renderInfo(rows []table.Row, withServer bool) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(bold("Kartei Build Information"))
	if withServer {
		t.AppendHeader(table.Row{"", "Client", "Server"})
		t.AppendRows(rows)
	} else {
		for _, row := range rows {
			t.AppendRow(row[:2])
		}
	}
	applyTableFormat(t)
	t.Render()
}
