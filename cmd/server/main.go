// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mau.fi/whatsmeow"

	"github.com/unclebandit/campaign-engine/internal/config"
	"github.com/unclebandit/campaign-engine/internal/controller"
	"github.com/unclebandit/campaign-engine/internal/db"
	"github.com/unclebandit/campaign-engine/internal/handler"
	"github.com/unclebandit/campaign-engine/internal/lock"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/queue"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/service"
	"github.com/unclebandit/campaign-engine/internal/whatsapp"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Campaign API and recurrence scheduler",
	RunE:  runServer,
}

func init() {
	rootCmd.PersistentFlags().String("port", "", "HTTP port (overrides APP_PORT)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging (overrides APP_DEBUG)")
	rootCmd.PersistentFlags().Duration("tick", 0, "scheduler tick interval (overrides SCHEDULER_TICK)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("[SERVER] Exited with error")
	}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.App.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.App.Debug = true
	}
	if tick, _ := cmd.Flags().GetDuration("tick"); tick > 0 {
		cfg.Scheduler.Tick = tick
	}
	cfg.App.ConfigureLogging()
	return cfg, nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	listRepo := &repository.ContactListRepository{DB: conn}
	itemRepo := &repository.ContactListItemRepository{DB: conn}

	// Queue: RabbitMQ when configured, otherwise in-process with a local worker
	var (
		q      queue.Queue
		memQ   *queue.InMemoryQueue
		events queue.Queue
	)
	if cfg.Queue.AMQPURL != "" {
		aq := queue.NewAMQPQueue(cfg.Queue.AMQPURL)
		if err := aq.Connect(ctx); err != nil {
			return err
		}
		defer aq.Close()
		q = aq
		events = queue.NewAMQPQueue(cfg.Queue.AMQPURL)
	} else {
		memQ = queue.NewInMemoryQueue()
		q = memQ
		events = memQ
		logrus.Warn("[SERVER] AMQP_URL not set, dispatching in-process")
	}

	notifier := queue.NewNotifier(events)
	if err := notifier.Connect(ctx); err != nil {
		logrus.WithError(err).Warn("[SERVER] Event notifier unavailable, events will be dropped")
	}
	defer notifier.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	locker := lock.New(redisClient, conn)

	var (
		checker whatsapp.Checker
		client  *whatsmeow.Client
	)
	if cfg.Validator.StoreURI != "" {
		client, err = whatsapp.OpenSession(ctx, cfg.Validator.StoreURI, cfg.Validator.LogLevel)
		if err != nil {
			logrus.WithError(err).Warn("[VALIDATOR] WhatsApp session unavailable, numbers will stay unchecked")
		} else {
			checker = client
			defer client.Disconnect()
		}
	}
	validator := whatsapp.NewValidator(checker, cfg.Validator.RatePerSecond, cfg.Validator.Burst)

	resolver := &service.AudienceResolver{
		Contacts:  contactRepo,
		Items:     itemRepo,
		Validator: validator,
		Notifier:  notifier,
		Timeout:   cfg.Validator.Timeout,
	}
	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		ListRepo:     listRepo,
		ItemRepo:     itemRepo,
		Resolver:     resolver,
		Notifier:     notifier,
	}
	scheduler := &service.Scheduler{
		Campaigns:   campaignRepo,
		Lists:       listRepo,
		Items:       itemRepo,
		Contacts:    contactRepo,
		Resolver:    resolver,
		Dispatcher:  &queue.Dispatcher{Queue: q},
		Locker:      locker,
		Notifier:    notifier,
		Interval:    cfg.Scheduler.Tick,
		Concurrency: cfg.Scheduler.Concurrency,
		BatchSize:   cfg.Scheduler.BatchSize,
		LockTTL:     cfg.Scheduler.LockTTL,
		StaleAfter:  cfg.Scheduler.StaleAfter,
	}

	if err := queue.StartCompletionSubscriber(q, scheduler.Complete); err != nil {
		return err
	}
	if memQ != nil {
		send := whatsapp.DryRun
		if client != nil {
			send = whatsapp.NewSender(client).Send
		}
		worker := service.NewDispatchWorker(nil, send, func(_ context.Context, done model.DispatchCompletion) error {
			return memQ.Publish(queue.TopicDispatchDone, done)
		})
		if err := queue.StartDispatchSubscriber(memQ, worker.Handle); err != nil {
			return err
		}
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	campaignHandler := handler.NewCampaignHandler(campaignService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(controller.RequireTenant)
		campaignController.Routes(r)
		campaignHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("port", cfg.App.Port).Info("[SERVER] Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logrus.Info("[SERVER] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("[SERVER] Graceful shutdown failed")
	}
	scheduler.Stop()
	if memQ != nil {
		memQ.Wait()
	}
	return nil
}
