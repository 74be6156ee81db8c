package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
	"github.com/GriffinCanCode/tapedeck/internal/server"
	"github.com/GriffinCanCode/tapedeck/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP/WebSocket session trigger and gRPC health",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http", cfg.HTTPAddr, "HTTP listen address")
	serveCmd.Flags().String("health", cfg.HealthAddr, "gRPC health listen address")
}

func runServe(*cobra.Command, []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}

	// playlist edits between sessions are picked up without a restart
	watcher, err := playlist.NewWatcher(cfg.Playlist)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	go watcher.Run(ctx)

	deps, err := buildDeps(ctx, cfg, func() (*playlist.Playlist, error) { return watcher.Current(), nil })
	if err != nil {
		return err
	}
	mgr := session.NewManager(deps)

	health := server.NewHealth()
	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		return err
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			slog.Error("health server error", "error", err)
		}
	}()

	srv := server.New(ctx, mgr, func() ([]audio.DeviceInfo, error) {
		return audio.ListDevices(cfg.LoopbackTokens)
	}, health)

	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("tapedeck server starting", "http", cfg.HTTPAddr, "health", cfg.HealthAddr, "playlist", cfg.Playlist)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.StopTimeout)
	defer shutdownCancel()

	if mgr.Running() {
		if _, err := mgr.Stop(shutdownCtx); err != nil {
			slog.Error("session stop error", "error", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	health.Stop()
	slog.Info("shutdown complete")
	return nil
}
