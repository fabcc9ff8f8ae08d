package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/ec-store-sync/internal/config"
	"github.com/example/ec-store-sync/internal/infrastructure/kafka"
	"github.com/example/ec-store-sync/internal/infrastructure/store"
	"github.com/example/ec-store-sync/internal/replica"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Replicator] Invalid configuration: %v", err)
	}

	log.Println("[Replicator] ========================================")
	log.Println("[Replicator] EC Store Sync - Cart Replicator")
	log.Println("[Replicator] ========================================")
	log.Printf("[Replicator] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Replicator] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Replicator] Group: %s", cfg.ConsumerGroup)
	log.Printf("[Replicator] Snapshot table: %s", cfg.DynamoTable)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("[Replicator] Failed to load AWS config: %v", err)
	}
	snapshots := store.NewDynamoSnapshotStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	log.Println("[Replicator] Connected to DynamoDB")

	listener := replica.NewListener(snapshots)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ConsumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Replicator] Starting event consumer...")
		if err := consumer.Consume(ctx, listener.HandleMessage); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Replicator] Consumer error: %v", err)
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Replicator] Shutting down...")
	cancel()
}
