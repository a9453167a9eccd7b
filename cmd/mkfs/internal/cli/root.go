// Package cli holds the mkfs command tree, structured the way
// dsmmcken-dh-cli's go_src/internal/cmd lays its cobra commands out:
// one exported constructor per subcommand, wired together by
// NewRootCmd, with PersistentFlags on the root carrying options every
// subcommand shares.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

// log is the package-wide logrus instance every subcommand logs build
// progress through, matching the teacher's own addfiles/copydata which
// print progress with fmt.Printf directly — logrus adds levels and
// structured fields on top of that same "narrate what the tool is
// doing" style.
var log = logrus.New()

// NewRootCmd builds the mkfs command tree: build, ls, inspect.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mkfs",
		Short: "Build and inspect FAT32 disk images for the kernel",
		Long:  "mkfs formats a FAT32 disk image, copies a kernel binary and a skeleton directory tree into it, and can list or inspect an already-built image.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			} else {
				log.SetLevel(logrus.InfoLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level build logging")

	root.AddCommand(newBuildCmd())
	root.AddCommand(newLsCmd())
	root.AddCommand(newInspectCmd())
	return root
}
