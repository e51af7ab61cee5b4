package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/FreddieTree/manual-review-sub000/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Run the lease reclaimer and outbox relay until SIGINT/SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("review worker stopped with error: %v", err)
		os.Exit(1)
	}
}
