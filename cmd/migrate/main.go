package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
)

func main() {
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		}
	}

	if listOnly {
		names, err := postgres.Migrations()
		if err != nil {
			log.Fatal(err)
		}
		for _, n := range names {
			fmt.Println(" ", n)
		}
		fmt.Printf("Total: %d migrations\n", len(names))
		return
	}

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Database.DSN == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	applied, err := postgres.Migrate(ctx, db)
	for _, name := range applied {
		log.Printf("  OK  %s", name)
	}
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("Done: %d applied", len(applied))
}
