package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	appbooking "gearshare/internal/app/booking"
	appoutbox "gearshare/internal/app/outbox"
	"gearshare/internal/app/uow"
	"gearshare/internal/domain/pricing"
	"gearshare/internal/domain/resource"
	"gearshare/internal/domain/shared/clock"
	"gearshare/internal/domain/shared/money"
	"gearshare/internal/infra/broker/kafka"
	"gearshare/internal/infra/config"
	mongodb "gearshare/internal/infra/db/mongo"
	ginserver "gearshare/internal/infra/http/gin"
	"gearshare/internal/infra/obs"
	infraoutbox "gearshare/internal/infra/outbox"
	"gearshare/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.StorageMode = "memory"
		cfg.Currency = "USD"
		cfg.DeliveryFeeCents = 1500
		cfg.BillingUnit = 24 * time.Hour
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application bootstrap failed", "error", err)
		os.Exit(1)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, ginserver.Handlers{
		Reservation: ginserver.ReservationHandler{Service: app.service},
	})

	if err := app.loadResourceFixtures(ctx, getenv("RESOURCE_FIXTURES", defaultResourceFixturesPath()), logger); err != nil {
		logger.Warn("resource fixtures load failed", "error", err)
	}

	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	service   *appbooking.Service
	resources resource.Repository
	worker    *infraoutbox.Worker
	ready     func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	calculator := pricing.StandardCalculator{
		BillingUnit: cfg.BillingUnit,
		DeliveryFee: money.Must(cfg.DeliveryFeeCents, cfg.Currency),
	}

	var (
		factory   uow.UoWFactory
		resources resource.Repository
		box       appoutbox.Outbox
		worker    *infraoutbox.Worker
		ready     = func() error { return nil }
	)

	switch cfg.StorageMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		resourceRepo := mongodb.NewResourceRepository(client.DB)
		reservationRepo := mongodb.NewReservationRepository(client.DB)
		store := infraoutbox.NewStore(client.DB)
		factory = mongodb.Factory{
			DB:               client.DB,
			ResourcesRepo:    resourceRepo,
			ReservationsRepo: reservationRepo,
		}
		resources = resourceRepo
		box = store
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		if len(cfg.KafkaBrokers) > 0 {
			producer, err := kafka.NewProducer(cfg.KafkaBrokers)
			if err != nil {
				return nil, fmt.Errorf("kafka producer: %w", err)
			}
			worker = &infraoutbox.Worker{
				Store:       store,
				Producer:    producer,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Source:      "app://gearshare",
				Backoff:     cfg.RetryBackoff,
			}
		} else {
			logger.Warn("KAFKA_BROKERS not set, outbox worker disabled")
		}
	default:
		resourceRepo := memory.NewResourceRepository()
		reservationRepo := memory.NewReservationRepository()
		factory = &memory.Factory{
			ResourcesRepo:    resourceRepo,
			ReservationsRepo: reservationRepo,
		}
		resources = resourceRepo
		box = memory.NewOutbox()
	}

	service := &appbooking.Service{
		UoWFactory: factory,
		Pricing:    calculator,
		Clock:      clock.SystemClock{},
		Outbox:     box,
		Encoder:    appoutbox.JSONEventEncoder{},
		Logger:     logger,
	}

	return &application{
		service:   service,
		resources: resources,
		worker:    worker,
		ready:     ready,
	}, nil
}

func (a *application) loadResourceFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("resource fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []resourceFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now().UTC()
	for _, fx := range fixtures {
		res, err := resource.NewResource(resource.CreateParams{
			ID:          resource.ResourceID(fx.ID),
			Owner:       resource.OwnerID(fx.Owner),
			Title:       fx.Title,
			Description: fx.Description,
			DailyRate:   money.Must(fx.DailyRateCents, fx.Currency),
			Deposit:     money.Must(fx.DepositCents, fx.Currency),
			Now:         now,
		})
		if err != nil {
			logger.Error("fixture invalid", "resource_id", fx.ID, "error", err)
			continue
		}
		if err := a.resources.Save(ctx, res); err != nil {
			logger.Error("cannot store fixture resource", "resource_id", fx.ID, "error", err)
			continue
		}
		logger.Info("resource fixture imported", "resource_id", res.ID)
	}
	return nil
}

type resourceFixture struct {
	ID             string `json:"id"`
	Owner          string `json:"owner"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	DailyRateCents int64  `json:"daily_rate_cents"`
	DepositCents   int64  `json:"deposit_cents"`
	Currency       string `json:"currency"`
}

func defaultResourceFixturesPath() string {
	return filepath.Join("data", "resources.json")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
