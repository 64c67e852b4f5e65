package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"noema/internal/broadcast"
	"noema/internal/events"
	"noema/internal/logging"
	"noema/internal/ruleswatcher"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveWSAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kernel, the rules-file watcher, and the WebSocket broadcast hub",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	k := buildKernel(cfg)
	k.start()
	defer k.stop()

	hub := broadcast.NewHub(k.router, k.kb)
	k.bus.Subscribe(func(ev events.Event) { hub.Emit(ev.Kind, ev.Payload) })
	go hub.Run()

	var watcher *ruleswatcher.Watcher
	if cfg.RulesDir != "" {
		watcher, err = ruleswatcher.New(cfg.RulesDir, k.router)
		if err != nil {
			return fmt.Errorf("start rules watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("start rules watcher: %w", err)
		}
		defer watcher.Stop()
	}

	log := logging.Get(logging.CategoryBroadcast)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{Addr: serveWSAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving websocket broadcast", zap.String("addr", serveWSAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
