package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/dgallion1/docfill/internal/api"
	"github.com/dgallion1/docfill/internal/config"
	"github.com/dgallion1/docfill/internal/generate"
	"github.com/dgallion1/docfill/internal/personnel"
	"github.com/dgallion1/docfill/internal/profile"
	"github.com/dgallion1/docfill/internal/uploads"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profiles, err := profile.Load(cfg.ProfilesPath)
	if err != nil {
		log.Error("load profiles", "error", err)
		os.Exit(1)
	}

	people, err := personnel.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		log.Error("open personnel store", "error", err)
		os.Exit(1)
	}
	defer people.Close()

	schedules, err := uploads.Open(cfg.DataDir, cfg.UploadTTL, log)
	if err != nil {
		log.Error("open schedule store", "error", err)
		os.Exit(1)
	}
	janitor := uploads.NewJanitor(schedules, time.Hour)
	janitor.Start(ctx)

	svc := generate.NewService(profiles, people, generate.Options{
		OutputDir:       cfg.OutputDir,
		ScheduleMaxRows: cfg.ScheduleMaxRows,
	}, log)

	srv, err := api.NewServer(svc, schedules, people, log, cfg)
	if err != nil {
		log.Error("init server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		log.Error("listen", "error", err)
		os.Exit(1)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConnections)

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		janitor.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting docfill",
		"port", cfg.Port,
		"profiles", len(profiles.All()),
		"max_connections", cfg.MaxConnections,
	)
	if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
