package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/miniserver/internal/cli/output"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the miniserver version, build information, and system details.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if versionShort {
			_, _ = fmt.Fprintln(out, Version)
			return nil
		}

		_, _ = fmt.Fprintf(out, "miniserver %s\n", Version)
		return output.PrintPairs(out, [][2]string{
			{"Commit", Commit},
			{"Built", Date},
			{"Go version", runtime.Version()},
			{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
		})
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")
}
