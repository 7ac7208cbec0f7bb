package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Merlin1A/air-pulse/internal/notification"
	"github.com/Merlin1A/air-pulse/internal/queue"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Alert Notifier...")

	notifier := notification.NewEmailNotifier(&cfg.SMTP)
	if err := notifier.TestConnection(); err != nil {
		fmt.Printf("Note: %v (alerts will be logged only)\n", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, cfg.Notifier.Group)
	defer consumer.Close()
	fmt.Printf("Consuming %s as %s\n", cfg.Kafka.TopicAlerts, cfg.Notifier.Group)

	worker := notification.NewWorker(consumer, notifier, cfg.Notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := worker.Stats()
				fmt.Printf("Alerts: sent=%d retried=%d dropped=%d malformed=%d\n",
					s.Sent, s.Retried, s.Dropped, s.Malformed)
			}
		}
	}()

	fmt.Println("\n✓ Alert Notifier is running")
	fmt.Printf("✓ Up to %d attempts per alert, backoff %s\n", cfg.Notifier.MaxAttempts, cfg.Notifier.RetryBackoff)
	fmt.Println("✓ Press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")
	<-done

	s := worker.Stats()
	fmt.Printf("Alert Notifier stopped (sent=%d dropped=%d)\n", s.Sent, s.Dropped)
}
