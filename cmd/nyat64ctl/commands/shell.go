package commands

import (
	"fmt"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive nyat64ctl shell",
		Long:  "Launches a console REPL offering the 'dump' and 'version' subcommands; 'dump' queries the same debug HTTP endpoints as on the command line.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runShell()
		},
	}
}

// runShell starts a reeflective/console REPL exposing the same
// subcommands as the non-interactive CLI, against the --addr already
// parsed onto the root command.
func runShell() error {
	app := console.New("nyat64ctl")

	menu := app.ActiveMenu()
	menu.Short = fmt.Sprintf("nyat64ctl shell (%s)", debugAddr)

	menu.SetCommands(func() *cobra.Command {
		root := &cobra.Command{
			Use:           "nyat64ctl",
			SilenceUsage:  true,
			SilenceErrors: true,
		}

		root.AddCommand(dumpCmd())
		root.AddCommand(versionCmd())

		return root
	})

	return app.Start()
}
