package command

import (
	"runtime"

	"github.com/spf13/cobra"
)

var Version = "dev"

func NewVersionCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cli.Printf("render version %s\n", Version)
			cli.Printf("%s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
