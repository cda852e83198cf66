package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/nyantec/nyat64/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print nyat64ctl build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("nyat64ctl"))
		},
	}
}
