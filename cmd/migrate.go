package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/bellapacxx/bingo-live/config"
	"github.com/bellapacxx/bingo-live/store"
)

func main() {
	config.LoadEnv()

	cfg := &config.Config{
		DatabaseURL:  os.Getenv("BINGO_DATABASE_URL"),
		DatabasePath: os.Getenv("BINGO_DATABASE_PATH"),
	}
	if cfg.DatabaseURL == "" && cfg.DatabasePath == "" {
		log.Fatal("[FATAL] BINGO_DATABASE_URL or BINGO_DATABASE_PATH is required")
	}

	db, err := config.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	g := store.NewGorm(db)
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := config.Migrate(ctx, g); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	log.Println("✅ Database migration completed successfully")
}
