package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"farematrix/internal/checkpoint"
)

// installShutdownHandler arranges a graceful stop on SIGINT or SIGTERM: the
// checkpoint is forced to disk, the run context is cancelled so no new batches
// launch, and in-flight workers get their grace period to finish the current
// task. Further signals are logged but the process still waits for workers.
func installShutdownHandler(cancel context.CancelFunc, store *checkpoint.Store) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		log.Printf("signal received sig=%s, saving checkpoint and stopping launches", sig)
		if err := store.Save(true); err != nil {
			log.Printf("checkpoint save on shutdown failed err=%v", err)
		}
		cancel()

		for sig := range signals {
			log.Printf("still shutting down, waiting for in-flight workers sig=%s", sig)
		}
	}()
}
