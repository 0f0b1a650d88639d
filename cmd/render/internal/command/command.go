package command

import (
	"fmt"
	"io"

	"github.com/AnatoleLucet/render/internal/config"
	"github.com/AnatoleLucet/render/internal/logging"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CLI is the state shared by every subcommand.
type CLI struct {
	Out    io.Writer
	Logger zerolog.Logger

	ConfigPath string
	Debug      bool
}

func NewCLI(out io.Writer, logger zerolog.Logger) *CLI {
	return &CLI{Out: out, Logger: logger}
}

func Highlight(format string, a ...any) string {
	return color.RGB(50, 108, 229).Sprintf(format, a...)
}

func (c *CLI) Printf(format string, a ...any) {
	fmt.Fprintf(c.Out, format, a...)
}

func (c *CLI) Println(a ...any) {
	fmt.Fprintln(c.Out, a...)
}

// LoadConfig reads the --config file, or the defaults when none was given,
// and validates the result.
func (c *CLI) LoadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if c.ConfigPath != "" {
		cfg, err = config.Load(c.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
	} else {
		cfg = config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			return config.Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok && !c.Debug {
		c.Logger = c.Logger.Level(lvl)
	}
	return cfg, nil
}

// ExactArgsWithUsage returns an error if there is not the exact number of
// args, and shows usage information.
func ExactArgsWithUsage(number int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == number {
			return nil
		}
		_ = cmd.Usage()
		if number == 1 {
			return fmt.Errorf("requires exactly 1 argument")
		}
		return fmt.Errorf("requires exactly %d arguments", number)
	}
}

func NoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	return fmt.Errorf("expected no arguments, got %d", len(args))
}
