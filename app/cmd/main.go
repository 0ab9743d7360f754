package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ragsql/app/server"
	"ragsql/config"
	"ragsql/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}
	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(l)
	l.Info("starting server", slog.Any("config", cfg))

	s := server.NewServer(cfg, l)

	errch := make(chan error, 1)
	go func() {
		errch <- s.Run(context.Background())
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigch:
		l.Info("received shutdown signal, shutting down server")
	case err := <-errch:
		if err != nil {
			l.Error("server failed", slog.Any("error", err))
			s.Stop()
			os.Exit(1)
		}
	}
	s.Stop()
}
