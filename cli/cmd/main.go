package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ragsql/app/server"
	"ragsql/cli"
	"ragsql/config"
	"ragsql/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (cli.Backend, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		l := logger.New(cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(l)
		d, err := server.Build(ctx, cfg, l)
		if err != nil {
			return nil, err
		}
		return cli.NewBackend(d), nil
	}

	if err := cli.NewRootCmd(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
