package command

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/AnatoleLucet/render/internal/server"
	"github.com/spf13/cobra"
)

type ServeOptions struct {
	Addr string
}

func NewServeCommand(cli *CLI) *cobra.Command {
	var opts ServeOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render and autoroute endpoints over HTTP",
		Long: Highlight("render serve") + "\n\n" +
			"Starts an HTTP server answering POST /render with the compiled\n" +
			"document of a JSON circuit description. POST /autoroute makes the\n" +
			"server usable as a remote autorouter for other instances.\n",
		Args: NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig()
			if err != nil {
				return err
			}
			if opts.Addr != "" {
				cfg.Server.Addr = opts.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, nil, cli.Logger).Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address, overriding the configuration")
	return cmd
}
