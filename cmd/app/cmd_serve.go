package main

import (
	"EdgeScan/internal/di"
	"EdgeScan/pkg/config"

	"github.com/spf13/cobra"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API and any configured request consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return err
			}
			// blocks until SIGINT/SIGTERM
			return app.Run()
		},
	}
}
