package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Merlin1A/air-pulse/internal/archive"
	"github.com/Merlin1A/air-pulse/internal/database"
	"github.com/Merlin1A/air-pulse/internal/queue"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Archive Writer Service...")

	// Schema is owned by the migrations directory
	migrator, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	migrator.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := archive.Connect(ctx, cfg.Archive.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to archive: %v", err)
	}
	defer db.Close()
	if err := db.Ready(ctx); err != nil {
		log.Fatalf("Archive not reachable: %v", err)
	}
	fmt.Println("Connected to archive")

	// Create Kafka consumer
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayloads, cfg.Kafka.ArchiverGroup)
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	batchWriter := queue.NewBatchWriter(consumer, db, cfg.Archive.BatchSize, cfg.Archive.FlushInterval)
	if err := batchWriter.Start(ctx); err != nil {
		log.Fatalf("Failed to start batch writer: %v", err)
	}
	fmt.Println("Batch writer started")

	// Print consumer stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := consumer.Stats()
				fmt.Printf("Consumer stats: Messages=%d, Bytes=%d, Errors=%d\n",
					stats.Messages, stats.Bytes, stats.Errors)
			}
		}
	}()

	fmt.Println("\n✓ Archive Writer Service is running")
	fmt.Printf("✓ Batch size: %d messages | Flush interval: %s\n", cfg.Archive.BatchSize, cfg.Archive.FlushInterval)
	fmt.Println("✓ Press Ctrl+C to stop")
	fmt.Println("\nWaiting for payloads...")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	batchWriter.Stop()
	fmt.Println("Archive Writer Service stopped")
}
