package main

import (
	"github.com/spf13/cobra"

	"github.com/spotmatch/internal/web"
)

// createServeCmd serves the run history over HTTP
func createServeCmd(a *app) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run history over a read-only JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, tracker, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			webConfig := &web.Config{
				Host:           a.cfg.Server.Host,
				Port:           a.cfg.Server.Port,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
			}
			if host != "" {
				webConfig.Host = host
			}
			if port > 0 {
				webConfig.Port = port
			}

			return web.NewServer(webConfig, tracker).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Bind port (default from config)")
	return cmd
}
