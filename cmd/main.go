/**
 * @description
 * This is the main entry point for the booking-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * message brokers, the push synchronization publisher, repositories, the core application
 * service, and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Push channels and rate limiting.
 * - internal/api, internal/app, internal/config, internal/realtime, internal/store: Internal packages.
 * - pkg/mailer, pkg/rabbitmq: Email delivery and broker clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/littlesteps/booking-service/internal/api"
	"github.com/littlesteps/booking-service/internal/app"
	"github.com/littlesteps/booking-service/internal/config"
	"github.com/littlesteps/booking-service/internal/realtime"
	"github.com/littlesteps/booking-service/internal/store"
	"github.com/littlesteps/booking-service/pkg/mailer"
	lsrabbit "github.com/littlesteps/booking-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load a local .env file when present; real deployments inject environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting booking-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Sized for dashboard traffic bursts when every open client refetches at once.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events.
	rabbitProducer, err := lsrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		rabbitProducer = nil
	} else {
		defer rabbitProducer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Connect Redis when configured. Redis carries the push sync channels and
	// the trainer-action rate limiter; without it the service still boots and
	// dashboards fall back to interval polling.
	var redisClient *redis.Client
	if cfg.PushEnabled() {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; push sync disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; push sync disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	} else {
		log.Println("level=info component=bootstrap msg=\"redis url missing; dashboards will poll\" env=REDIS_URL")
	}

	var syncPublisher realtime.SyncPublisher = realtime.NoopSyncPublisher{}
	if redisClient != nil {
		syncPublisher = realtime.NewRedisSyncPublisher(redisClient, cfg.SyncChannelPrefix)
	}

	// Email delivery degrades to in-app notifications only when Resend is not configured.
	var mail mailer.Mailer = mailer.Noop{}
	if strings.TrimSpace(cfg.ResendAPIKey) != "" {
		mail = mailer.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom)
		log.Println("level=info component=bootstrap msg=\"resend mailer configured\"")
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	var producer lsrabbit.Publisher
	if rabbitProducer != nil {
		producer = rabbitProducer
	}
	bookingService := app.NewService(repository, producer, syncPublisher, mail)
	if redisClient != nil && cfg.TrainerActionRateLimitPerMin > 0 {
		bookingService.SetRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.TrainerActionRateLimitPerMin,
		)
	}

	// Initialize the API handlers.
	bookingHandlers := api.NewBookingHandlers(bookingService)
	var webhookProducer lsrabbit.Publisher = &lsrabbit.EventProducerFallback{}
	if rabbitProducer != nil {
		webhookProducer = rabbitProducer
	}
	webhookHandler := api.NewPaymentWebhookHandler(webhookProducer, cfg.PaymentWebhookSecret)

	// Dashboard sessions pick their sync strategy once at connect time: push
	// over Redis when it is up, interval polling otherwise.
	var syncClient redis.UniversalClient
	if redisClient != nil {
		syncClient = redisClient
	}
	syncHandler := api.NewSyncHandler(syncClient, cfg.SyncChannelPrefix,
		time.Duration(cfg.SyncPollIntervalSeconds)*time.Second)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.BookingRoutes(bookingHandlers, webhookHandler, syncHandler, cfg.JWKSURL))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	// Wire up the payment settlement consumer: bind payment lifecycle routing keys
	// to the consumer and ensure graceful shutdown.
	paymentConsumer := bookingService.PaymentStatusConsumer()

	rabbitConsumer, err := lsrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer rabbitConsumer.Close()

	paymentBindings := map[string]func([]byte) bool{
		"payment.status.completed":  paymentConsumer.HandleMessage,
		"payment.status.failed":     paymentConsumer.HandleMessage,
		"payment.status.processing": paymentConsumer.HandleMessage,
	}

	if err := rabbitConsumer.ConsumeWithBindings("littlesteps.events", cfg.PaymentEventQueue, paymentBindings); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"payment consumer start failed\" err=%v", err)
	}

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
