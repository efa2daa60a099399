// Sweeper marks expired sessions inactive on an interval. Run alongside the
// server; safe to run multiple instances.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"janua/engine/internal/config"
	"janua/engine/internal/db"
	sessionrepo "janua/engine/internal/session/repository"
	"janua/engine/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("sweeper running every %s", cfg.SweepEvery())
	sweep.New(sessionrepo.NewPostgresRepository(sqlDB), cfg.SweepEvery()).Run(ctx)
	log.Println("sweeper stopped")
}
