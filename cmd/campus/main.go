package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"campus/internal/cli"
	"campus/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, config.Load())
	stop()
	os.Exit(code)
}
