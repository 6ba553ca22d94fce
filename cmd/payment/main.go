package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"festival-ticketing/config"
	"festival-ticketing/internal/redisclient"
	"festival-ticketing/internal/scheduler"
	"festival-ticketing/internal/service"
	"festival-ticketing/internal/store"
	"festival-ticketing/internal/stream"
	"festival-ticketing/internal/util"
	"festival-ticketing/internal/worker"
	"festival-ticketing/internal/workerpool"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting payment worker")

	tp, err := util.InitTracer("festival-ticketing-payment", cfg.Observ.JaegerEndpoint)
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

	pool := workerpool.New(cfg.Payment.PoolSize, cfg.Payment.QueueDepth)
	defer pool.Shutdown()

	processor := &service.SimulatedProcessor{Latency: 100 * time.Millisecond}
	payments := service.NewPaymentService(processor, cfg.Payment.MaxRetry, cfg.Payment.BaseDelay)

	paymentWorker := worker.NewPaymentWorker(payments, db, streamClient, streamClient, pool,
		cfg.Streams.PaymentRequest, cfg.Streams.PaymentRequestGroup, cfg.Streams.PaymentResult)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	requestConsumer := stream.NewConsumer(streamClient, stream.ConsumerConfig{
		Stream:       cfg.Streams.PaymentRequest,
		Group:        cfg.Streams.PaymentRequestGroup,
		ConsumerName: cfg.Streams.ConsumerName,
		Block:        cfg.Streams.ReadBlock,
		BatchSize:    int64(cfg.Streams.ReadBatchSize),
		// Acked by the settlement task once the result is in the log.
		AutoAck: false,
	})
	go func() {
		if err := requestConsumer.Start(workerCtx, paymentWorker.Handle); err != nil && workerCtx.Err() == nil {
			log.Printf("Payment request consumer error: %v", err)
		}
	}()

	// Recovery settles inline so a message is only acked once its verdict
	// is durably emitted.
	requestRecovery := scheduler.NewPendingRecovery(streamClient, redisClient,
		cfg.Streams.PaymentRequest, cfg.Streams.PaymentRequestGroup, cfg.Streams.ConsumerName,
		paymentWorker.HandleBlocking, cfg.Recovery)
	go requestRecovery.Run(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down payment worker...")
	workerCancel()
	log.Println("Payment worker exited")
}
