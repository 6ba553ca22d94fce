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
	"festival-ticketing/internal/store"
	"festival-ticketing/internal/stream"
	"festival-ticketing/internal/util"
	"festival-ticketing/internal/worker"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting status scheduler")

	tp, err := util.InitTracer("festival-ticketing-scheduler", cfg.Observ.JaegerEndpoint)
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

	engine := scheduler.NewEngine(db, cfg.Scheduler.PollInterval, cfg.Scheduler.ClaimBatch)
	festivalSched := scheduler.NewFestivalScheduler(db, engine)
	ticketSched := scheduler.NewTicketScheduler(db, redisClient, engine, cfg.Scheduler.CacheRefreshLead)

	// Catch up on anything that came due while no scheduler was running.
	if err := festivalSched.RecoverAll(ctx); err != nil {
		log.Fatalf("Failed to recover festival schedule: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.Run(runCtx)

	festivalHandler := worker.FestivalScheduleHandler(festivalSched)
	festivalConsumer := stream.NewConsumer(streamClient, stream.ConsumerConfig{
		Stream:       cfg.Streams.FestivalSchedule,
		Group:        cfg.Streams.FestivalScheduleGroup,
		ConsumerName: cfg.Streams.ConsumerName,
		Block:        cfg.Streams.ReadBlock,
		BatchSize:    int64(cfg.Streams.ReadBatchSize),
		AutoAck:      true,
	})
	go func() {
		if err := festivalConsumer.Start(runCtx, festivalHandler); err != nil && runCtx.Err() == nil {
			log.Printf("Festival schedule consumer error: %v", err)
		}
	}()

	ticketHandler := worker.TicketScheduleHandler(ticketSched)
	ticketConsumer := stream.NewConsumer(streamClient, stream.ConsumerConfig{
		Stream:       cfg.Streams.TicketSchedule,
		Group:        cfg.Streams.TicketScheduleGroup,
		ConsumerName: cfg.Streams.ConsumerName,
		Block:        cfg.Streams.ReadBlock,
		BatchSize:    int64(cfg.Streams.ReadBatchSize),
		AutoAck:      true,
	})
	go func() {
		if err := ticketConsumer.Start(runCtx, ticketHandler); err != nil && runCtx.Err() == nil {
			log.Printf("Ticket schedule consumer error: %v", err)
		}
	}()

	festivalRecovery := scheduler.NewPendingRecovery(streamClient, redisClient,
		cfg.Streams.FestivalSchedule, cfg.Streams.FestivalScheduleGroup, cfg.Streams.ConsumerName,
		festivalHandler, cfg.Recovery)
	go festivalRecovery.Run(runCtx)

	ticketRecovery := scheduler.NewPendingRecovery(streamClient, redisClient,
		cfg.Streams.TicketSchedule, cfg.Streams.TicketScheduleGroup, cfg.Streams.ConsumerName,
		ticketHandler, cfg.Recovery)
	go ticketRecovery.Run(runCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down scheduler...")
	cancel()
	log.Println("Scheduler exited")
}
