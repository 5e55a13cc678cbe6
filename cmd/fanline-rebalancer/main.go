// Fanline Rebalancer — возвращает в работу jobs без instance.
//
// Rebalancer:
//   - Слушает события lifecycle из RabbitMQ
//   - На отключение instance раздаёт его jobs заново
//   - По cron-расписанию подбирает осиротевшие jobs (reconciliation)
//
// Работает отдельным процессом и не держит протокольных сессий.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Fanline/internal/campaign"
	"github.com/shaiso/Fanline/internal/mq"
	"github.com/shaiso/Fanline/internal/rebalancer"
	"github.com/shaiso/Fanline/internal/repo"
	"github.com/shaiso/Fanline/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting fanline-rebalancer")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории ledger
	instanceRepo := repo.NewInstanceRepo(pool)
	campaignRepo := repo.NewCampaignRepo(pool)
	jobRepo := repo.NewJobRepo(pool)
	locker := repo.NewLocker(pool)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn, logger)
	logger.Info("RabbitMQ connected")

	// Сервис кампаний без протокольного слоя: rebalancer только
	// перераздаёт уже созданные jobs, Participants ему не нужен
	campaigns := campaign.New(campaign.Config{
		Campaigns: campaignRepo,
		Jobs:      jobRepo,
		Instances: instanceRepo,
		Queue:     publisher,
		Locker:    locker,
		Logger:    logger,
	})

	rb, err := rebalancer.New(rebalancer.Config{
		Campaigns:     campaignRepo,
		Jobs:          jobRepo,
		Locker:        locker,
		Scheduler:     campaigns,
		Conn:          mqConn,
		Logger:        logger,
		ReconcileCron: os.Getenv("RECONCILE_CRON"),
	})
	if err != nil {
		logger.Error("failed to create rebalancer", "error", err)
		os.Exit(1)
	}

	if err := rb.Start(ctx); err != nil {
		logger.Error("failed to start rebalancer", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("REBALANCER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	rb.Stop()
	logger.Info("fanline-rebalancer stopped")
}
