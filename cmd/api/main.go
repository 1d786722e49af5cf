package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront-checkout/internal/addresses"
	"github.com/imrishuroy/go-storefront-checkout/internal/aws"
	"github.com/imrishuroy/go-storefront-checkout/internal/background"
	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
	"github.com/imrishuroy/go-storefront-checkout/internal/config"
	"github.com/imrishuroy/go-storefront-checkout/internal/handlers"
	"github.com/imrishuroy/go-storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/go-storefront-checkout/internal/logging"
	"github.com/imrishuroy/go-storefront-checkout/internal/middleware"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
	"github.com/imrishuroy/go-storefront-checkout/internal/postgres"
	"github.com/imrishuroy/go-storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/go-storefront-checkout/internal/validation"
)

func setupRouter(logger logrus.FieldLogger, cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	handlers.RegisterRoutes(r, cfg)
	return r
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	bg := background.New(logger, 256, 5*time.Second)
	defer bg.Close()
	validator := validation.New()

	hc := handlers.HandlerConfig{
		JWTSecret:            cfg.JWTSecret,
		AllowAnonymousVerify: cfg.AllowAnonymousVerify,
		Validator:            validator,
		Log:                  logger,
	}

	deps := reconcile.Deps{
		Config:     cfg,
		Gateway:    paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, logger),
		Guard:      idempotency.NewStore(clients.DynamoDB, cfg.ReferencesTable, idempotency.DefaultTTL),
		Metrics:    aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace),
		Background: bg,
		Validator:  validator,
		Log:        logger,
	}
	if cfg.FollowUpQueueURL != "" {
		pub := aws.NewPublisher(clients.SQS, cfg.FollowUpQueueURL)
		pub.DelaySeconds = 60
		deps.Publisher = pub
	} else {
		logger.Warn("FOLLOWUP_QUEUE_URL not set, pending orders will not be followed up")
	}

	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
				log.Fatalf("failed to migrate database: %v", err)
			}
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, !cfg.RunLocal)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pool.Close()

		store := orders.NewStore(pool)
		if caps, err := store.Capabilities(ctx); err != nil {
			logger.WithError(err).Warn("orders schema probe failed, assuming full schema")
		} else {
			logger.WithField("capabilities", caps).Info("orders schema probed")
		}
		deps.Orders = store
		hc.Orders = store
		hc.Addresses = addresses.NewStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set, order routes disabled")
	}
	hc.Reconciler = reconcile.NewService(deps)

	var local cart.LocalCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		local = cart.NewRedisCache(rdb)
	}
	hc.Cart = cart.NewService(cart.NewDynamoStore(clients.DynamoDB, cfg.CartTable), local, logger)

	r := setupRouter(logger, hc)

	// if RUN_LOCAL is true, run a local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Infof("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
