package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/ec-store-sync/internal/api"
	"github.com/example/ec-store-sync/internal/auth"
	"github.com/example/ec-store-sync/internal/config"
	"github.com/example/ec-store-sync/internal/infrastructure/store"
	"github.com/example/ec-store-sync/internal/reconcile"
	"github.com/example/ec-store-sync/internal/scheduler"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Syncer] Invalid configuration: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("[Syncer] JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[Syncer] JWT_SECRET must be at least 32 characters long")
	}

	log.Println("[Syncer] ========================================")
	log.Println("[Syncer] EC Store Sync - Reconciliation Service")
	log.Println("[Syncer] ========================================")
	log.Printf("[Syncer] Product source: MongoDB %s/%s", cfg.MongoDatabase, cfg.MongoCollection)
	log.Printf("[Syncer] Cart source:    PostgreSQL")
	log.Printf("[Syncer] Snapshot table: DynamoDB %s", cfg.DynamoTable)

	// Source and target stores
	mongoClient, err := store.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("[Syncer] Failed to connect to MongoDB: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	log.Println("[Syncer] Connected to MongoDB")

	db, err := store.ConnectPostgres(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("[Syncer] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[Syncer] Connected to PostgreSQL")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("[Syncer] Failed to load AWS config: %v", err)
	}
	snapshots := store.NewDynamoSnapshotStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	log.Println("[Syncer] Connected to DynamoDB")

	redisClient, err := store.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("[Syncer] Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("[Syncer] Connected to Redis")

	products := store.NewMongoProductStore(mongoClient, cfg.MongoDatabase, cfg.MongoCollection)
	carts := store.NewPostgresCartStore(db)
	syncLog := store.NewRedisSyncLog(redisClient)

	// Reconcilers
	productSync := reconcile.NewProductReconciler(products, carts, syncLog)
	cartSync := reconcile.NewCartReconciler(carts, snapshots, syncLog)

	// Scheduler
	sched, err := scheduler.New(scheduler.Config{
		ProductSpec:     cfg.ProductCron,
		CartSpec:        cfg.CartCron,
		HealthCheckSpec: cfg.HealthCheckCron,
		Timezone:        cfg.Timezone,
		BatchSize:       cfg.BatchSize,
	}, productSync, cartSync)
	if err != nil {
		log.Fatalf("[Syncer] Failed to build scheduler: %v", err)
	}
	if cfg.EnableScheduler {
		if err := sched.Start(); err != nil {
			log.Fatalf("[Syncer] Failed to start scheduler: %v", err)
		}
	} else {
		log.Println("[Syncer] Scheduler disabled (ENABLE_SCHEDULER=false)")
	}

	// Operator API
	jwtService := auth.NewJWTService(cfg.JWTSecret, 15*time.Minute)
	handlers := api.NewHandlers(productSync, cartSync, sched)
	router := api.NewRouter(handlers, jwtService)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("[Syncer] Server started on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[Syncer] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Syncer] Shutting down...")
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
