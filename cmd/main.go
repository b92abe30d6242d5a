/**
 * @description
 * This is the main entry point for the payment-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/posterclient, pkg/rabbitmq, pkg/mqttprint, pkg/telegram, pkg/webhookclient: Outbound integrations.
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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/venuehub/payment-service/internal/api"
	"github.com/venuehub/payment-service/internal/app"
	"github.com/venuehub/payment-service/internal/config"
	"github.com/venuehub/payment-service/internal/store"
	"github.com/venuehub/payment-service/pkg/mqttprint"
	"github.com/venuehub/payment-service/pkg/posterclient"
	"github.com/venuehub/payment-service/pkg/rabbitmq"
	"github.com/venuehub/payment-service/pkg/telegram"
	"github.com/venuehub/payment-service/pkg/webhookclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Webhook bursts from the provider arrive in parallel; keep a wide pool.
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
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

	// Initialize the RabbitMQ producer to publish settled-order events. The
	// service only needs to publish, so a producer is enough; when the broker
	// is down at boot, settlement still works and events are skipped.
	var eventPublisher rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventPublisher = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventPublisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the Poster POS API.
	posterClient := posterclient.NewClient(cfg.PosterAPIBaseURL)

	// Receipt printing over MQTT is optional; venues without printer bridges
	// run with it disabled.
	var receiptPublisher app.ReceiptPublisher
	if strings.TrimSpace(cfg.MQTTBrokerURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"mqtt broker url missing; receipt printing disabled\" env=MQTT_BROKER_URL")
	} else {
		mqttPublisher := mqttprint.NewPublisher(cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.MQTTReceiptTopicPrefix)
		if err := mqttPublisher.Connect(); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"mqtt connect failed; receipt printing disabled\" err=%v", err)
		} else {
			defer mqttPublisher.Close()
			receiptPublisher = mqttPublisher
			log.Println("level=info component=bootstrap msg=\"mqtt publisher connected\"")
		}
	}

	// Owner Telegram pushes are optional as well.
	var ownerNotifier app.OwnerNotifier
	if cfg.TelegramBotToken == "" {
		log.Println("level=warn component=bootstrap msg=\"telegram token missing; owner notifications disabled\" env=TELEGRAM_BOT_TOKEN")
	} else {
		tgNotifier, err := telegram.NewNotifier(cfg.TelegramBotToken)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"telegram bot init failed; owner notifications disabled\" err=%v", err)
		} else {
			ownerNotifier = tgNotifier
			log.Println("level=info component=bootstrap msg=\"telegram bot authorized\"")
		}
	}

	var automationForwarder app.AutomationForwarder
	if cfg.AutomationWebhookURL == "" {
		log.Println("level=warn component=bootstrap msg=\"automation webhook url missing; forwarding disabled\" env=AUTOMATION_WEBHOOK_URL")
	} else {
		automationForwarder = webhookclient.NewClient(cfg.AutomationWebhookURL)
	}

	var redisClient *redis.Client
	if cfg.WebhookRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; webhook rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; webhook rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; webhook rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Wire the post-commit fan-out and the core service.
	notifier := app.NewNotifier(repository, ownerNotifier, receiptPublisher, automationForwarder, eventPublisher)
	paymentService := app.NewService(repository, app.NewPosterGateway(posterClient), notifier)

	var limiter api.WebhookRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisWebhookRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Initialize the API handlers and router.
	paymentHandlers := api.NewPaymentHandlers(paymentService)
	router := api.PaymentRoutes(paymentHandlers, limiter, cfg.WebhookRateLimitPerMinute)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

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
