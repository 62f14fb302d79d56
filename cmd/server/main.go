// Package main starts the DeskChat service and handles termination.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deskchat-io/deskchat/internal/server"
)

const (
	httpShutdownTimeout = 10 * time.Second
	hubShutdownTimeout  = 5 * time.Second
)

func main() {
	fmt.Println("Starting DeskChat server...")

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	server.SetConfig(cfg)

	server.StartHub()

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(cfg.Port, mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received")
		if err := server.ShutdownServer(httpServer, httpShutdownTimeout); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		if err := server.GetHub().Shutdown(hubShutdownTimeout); err != nil {
			log.Printf("Hub shutdown: %v", err)
		}
	}
}
