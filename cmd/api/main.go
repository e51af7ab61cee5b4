package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/FreddieTree/manual-review-sub000/internal/app/bootstrap"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP until SIGINT/SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildAPI()
	if err != nil {
		log.Fatalf("bootstrap api failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("api shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("review api stopped with error: %v", err)
		os.Exit(1)
	}
}
