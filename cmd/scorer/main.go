package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Merlin1A/air-pulse/internal/archive"
	"github.com/Merlin1A/air-pulse/internal/queue"
	"github.com/Merlin1A/air-pulse/internal/scoring"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Forecast Scoring Service...")

	ctx := context.Background()
	db, err := archive.Connect(ctx, cfg.Archive.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to archive: %v", err)
	}
	defer db.Close()
	if err := db.Ready(ctx); err != nil {
		log.Fatalf("Archive not reachable: %v", err)
	}
	fmt.Println("Connected to archive")

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicAccuracy, cfg.Kafka.NumPartitions, 1); err != nil {
		fmt.Printf("Note: could not create topic %s: %v\n", cfg.Kafka.TopicAccuracy, err)
	}
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAccuracy)
	defer producer.Close()

	job := scoring.NewJob(db, producer, cfg.Scoring.Lookback, cfg.Scoring.Tolerance)
	if err := job.Start(cfg.Scoring.Interval); err != nil {
		log.Fatalf("Failed to start scoring job: %v", err)
	}
	defer job.Stop()

	fmt.Println("\n✓ Forecast Scoring Service is running")
	fmt.Printf("✓ Every %s over the last %s (match tolerance %s)\n",
		cfg.Scoring.Interval, cfg.Scoring.Lookback, cfg.Scoring.Tolerance)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
