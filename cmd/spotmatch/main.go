package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spotmatch/internal/debug"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		debug.Logger().Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
