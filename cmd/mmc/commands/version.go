package commands

import (
	"fmt"
	"runtime"

	"github.com/Sternrassler/mattermost-client/pkg/client"
	"github.com/spf13/cobra"
)

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mmc %s (library %s, %s %s/%s)\n",
				version, client.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
