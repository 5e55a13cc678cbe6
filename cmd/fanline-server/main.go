// Fanline Server — управляющий сервис рассылок.
//
// Server:
//   - Держит протокольные сессии всех instances
//   - Отдаёт HTTP API для управления instances и кампаниями
//   - Потребляет очереди отправки и выполняет рассылку
//
// Rebalancer работает отдельным процессом (fanline-rebalancer).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Fanline/internal/api"
	"github.com/shaiso/Fanline/internal/campaign"
	"github.com/shaiso/Fanline/internal/gateway/whatsapp"
	"github.com/shaiso/Fanline/internal/media"
	"github.com/shaiso/Fanline/internal/mq"
	"github.com/shaiso/Fanline/internal/registry"
	"github.com/shaiso/Fanline/internal/repo"
	"github.com/shaiso/Fanline/internal/sender"
	"github.com/shaiso/Fanline/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanline_server_http_requests_total",
		Help: "Total HTTP requests handled by fanline_server",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting fanline-server")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool + миграции ledger
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
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

	// Файлы рассылок (image, audio)
	mediaDir := os.Getenv("MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = "./media"
	}
	mediaStore, err := media.NewStore(mediaDir)
	if err != nil {
		logger.Error("failed to open media store", "dir", mediaDir, "error", err)
		os.Exit(1)
	}

	// Хранилище учётных данных протокольного слоя
	container, err := whatsapp.NewContainer(ctx, logger)
	if err != nil {
		logger.Error("failed to open device store", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	factory := whatsapp.NewFactory(container, mediaStore, logger)

	// Сессии, события, отправка
	sessions := registry.NewRegistry()
	hub := registry.NewHub()

	snd := sender.New(sender.Config{
		Jobs:      jobRepo,
		Campaigns: campaignRepo,
		Sessions:  sessions,
		Logger:    logger,
	})
	consumers := sender.NewManager(mqConn, snd, logger)

	supervisor := registry.NewSupervisor(
		sessions, hub, instanceRepo, factory, consumers, mqConn, publisher, logger,
	)

	campaigns := campaign.New(campaign.Config{
		Campaigns:    campaignRepo,
		Jobs:         jobRepo,
		Instances:    instanceRepo,
		Queue:        publisher,
		Participants: sessions,
		Locker:       locker,
		Logger:       logger,
	})

	// Поднимаем сессии всех известных instances
	if err := supervisor.StartAll(ctx); err != nil {
		logger.Error("failed to start instances", "error", err)
		os.Exit(1)
	}

	// API handler
	handler := api.NewHandler(api.Config{
		InstanceRepo: instanceRepo,
		Campaigns:    campaigns,
		Supervisor:   supervisor,
		Sessions:     sessions,
		Hub:          hub,
		Media:        mediaStore,
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("SERVER_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	consumers.StopAll()
	supervisor.Shutdown()
	logger.Info("fanline-server stopped")
}
