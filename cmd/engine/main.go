package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Merlin1A/air-pulse/internal/alerting"
	"github.com/Merlin1A/air-pulse/internal/engine"
	"github.com/Merlin1A/air-pulse/internal/preference"
	"github.com/Merlin1A/air-pulse/internal/queue"
	"github.com/Merlin1A/air-pulse/internal/stores"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

const maxAttempts = 3

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Decision Engine...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opened, err := stores.OpenShared(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open preference store: %v", err)
	}
	defer opened.Close()
	fmt.Printf("Preference store ready (%s)\n", opened.Backend)

	guarded := preference.NewBreakerStore(opened.Store, preference.BreakerSettings{
		Name:                "preference-store",
		MaxRequests:         uint32(cfg.Engine.BreakerHalfOpenReqs),
		Timeout:             cfg.Engine.BreakerTimeout,
		ConsecutiveFailures: uint32(cfg.Engine.BreakerFailures),
	})

	// Create alert producer (for notifications)
	alertProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
	defer alertProducer.Close()
	fmt.Println("Alert producer initialized")

	eng := engine.New(alerting.NewEvaluator(guarded), queue.NewAlertDispatcher(alertProducer), cfg.Engine.Cooldown)

	// Payloads are keyed by location, so one location is always handled by one consumer
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayloads, cfg.Kafka.EngineGroup)
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	fmt.Println("\n✓ Decision Engine is running")
	fmt.Printf("✓ Alert cooldown: %s\n", cfg.Engine.Cooldown)
	fmt.Println("✓ Press Ctrl+C to stop")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := consumer.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Failed to consume message: %v\n", err)
				continue
			}

			for attempt := 1; ; attempt++ {
				out, err := eng.Process(ctx, msg.Value)
				if err == nil {
					if out.Alerts > 0 {
						fmt.Printf("Raised %d alerts for %s\n", out.Alerts, out.LocationKey)
					}
					break
				}
				if !engine.Retryable(err) || attempt >= maxAttempts || ctx.Err() != nil {
					log.Printf("Giving up on payload (partition=%d, offset=%d): %v\n", msg.Partition, msg.Offset, err)
					break
				}
				// Users already alerted are in cooldown, so a rerun only reaches the ones that failed
				log.Printf("Retrying payload for %s (attempt %d): %v\n", out.LocationKey, attempt, err)
				time.Sleep(time.Duration(attempt) * time.Second)
			}

			if err := consumer.Commit(ctx, msg); err != nil {
				log.Printf("Failed to commit offset: %v\n", err)
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	cancel()
	<-done
	fmt.Printf("Preference store circuit: %s\n", guarded.State())
}
