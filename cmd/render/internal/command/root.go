package command

import (
	"os"
	"strings"

	"github.com/AnatoleLucet/render/internal/logging"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func NewRootCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Compile circuit descriptions into netlist, schematic and PCB records",
		Long: Highlight("Usage: render [global options] <subcommand> [args]") + "\n\n" +
			"render expands a declarative circuit description into a tree of\n" +
			"components and runs the compilation phases over it until the tree\n" +
			"settles, including the background layout and autorouting work.\n",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				_ = cmd.Help()
			}
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cli.Debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				cli.Logger = cli.Logger.Level(zerolog.DebugLevel)
			}
		},
	}

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVarP(&cli.ConfigPath, "config", "c", "", "Path to a TOML configuration file")
	cmd.PersistentFlags().BoolVar(&cli.Debug, "debug", false, "Set log level to debug")
	return cmd
}

func setUsageTemplate(root *cobra.Command) {
	cobra.AddTemplateFunc("StyleHeading", color.RGB(50, 108, 229).SprintFunc())
	usageTemplate := strings.NewReplacer(
		`Usage:`, `{{StyleHeading "Usage:"}}`,
		`Examples:`, `{{StyleHeading "Examples:"}}`,
		`Available Commands:`, `{{StyleHeading "Available Commands:"}}`,
		`Flags:`, `{{StyleHeading "Options:"}}`,
		`Global Flags:`, `{{StyleHeading "Global Options:"}}`,
	).Replace(root.UsageTemplate())
	root.SetUsageTemplate(usageTemplate)
}

func Execute() {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		color.NoColor = true
	}

	cli := NewCLI(os.Stdout, logging.ConfigureRuntime())
	root := NewRootCommand(cli)
	setUsageTemplate(root)
	root.SetVersionTemplate("{{.Version}}\n")
	AddCommands(root, cli)

	if err := root.Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			cli.Println(color.RedString("Error:"), msg)
		}
		os.Exit(1)
	}
}

// AddCommands registers all subcommands to the root command.
func AddCommands(root *cobra.Command, cli *CLI) {
	root.AddCommand(
		NewRenderCommand(cli),
		NewServeCommand(cli),
		NewVersionCommand(cli),
	)
}
