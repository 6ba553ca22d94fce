package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"festival-ticketing/config"
	"festival-ticketing/internal/api"
	"festival-ticketing/internal/redisclient"
	"festival-ticketing/internal/scheduler"
	"festival-ticketing/internal/service"
	"festival-ticketing/internal/store"
	"festival-ticketing/internal/stream"
	"festival-ticketing/internal/util"
	"festival-ticketing/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticketing API")

	tp, err := util.InitTracer("festival-ticketing-api", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	streamClient := stream.NewClient(redisClient.GetClient())

	ctx := context.Background()
	if err := stream.InitStreams(ctx, redisClient.GetClient(), streamClient, cfg.Streams); err != nil {
		log.Fatalf("Failed to initialize streams: %v", err)
	}
	log.Println("Streams initialized")

	admission := service.NewAdmissionService(db, redisClient, cfg.Business.PurchaseSessionTTL)
	purchases := service.NewPurchaseService(db, admission, streamClient, cfg.Streams.PaymentRequest)
	admin := service.NewAdminService(db, streamClient, cfg.Streams.FestivalSchedule, cfg.Streams.TicketSchedule)

	// Payment results settle in this process so the API serves purchase
	// status from the same store it writes.
	results := service.NewResultService(db, admission)
	resultWorker := worker.NewResultWorker(results)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	resultConsumer := stream.NewConsumer(streamClient, stream.ConsumerConfig{
		Stream:       cfg.Streams.PaymentResult,
		Group:        cfg.Streams.PaymentResultGroup,
		ConsumerName: cfg.Streams.ConsumerName,
		Block:        cfg.Streams.ReadBlock,
		BatchSize:    int64(cfg.Streams.ReadBatchSize),
		AutoAck:      true,
	})
	go func() {
		if err := resultConsumer.Start(workerCtx, resultWorker.Handle); err != nil && workerCtx.Err() == nil {
			log.Printf("Payment result consumer error: %v", err)
		}
	}()

	resultRecovery := scheduler.NewPendingRecovery(streamClient, redisClient,
		cfg.Streams.PaymentResult, cfg.Streams.PaymentResultGroup, cfg.Streams.ConsumerName,
		resultWorker.Handle, cfg.Recovery)
	go resultRecovery.Run(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(admission, purchases, admin)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
