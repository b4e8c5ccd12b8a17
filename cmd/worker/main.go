package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/livestore"
	"rollcall/internal/store"
	"rollcall/internal/sweep"
)

// Worker runs the persistence sweep: the single writer of the live-to-
// durable transition, kept out of the API process on purpose.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	if !redisClient.Healthy(ctx) {
		log.Println("WARNING: redis not reachable yet, sweep will retry each interval")
	}

	live := livestore.New(redisClient.Client)
	archive := attendance.NewArchive(db.Client)

	sweeper := sweep.New(live, archive, cfg.SweepInterval)
	sweeper.Run(ctx)
}
