package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"net/smtp"
	"os"

	"github.com/zllovesuki/prepme/auth"
	"github.com/zllovesuki/prepme/broker"
	"github.com/zllovesuki/prepme/customer"
	"github.com/zllovesuki/prepme/db"
	"github.com/zllovesuki/prepme/external"
	"github.com/zllovesuki/prepme/plan"
	"github.com/zllovesuki/prepme/subscription"
	"github.com/zllovesuki/prepme/transaction"
	"github.com/zllovesuki/prepme/voucher"

	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer logger.Sync()

	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	stripeClient := external.NewStripeClient(os.Getenv("STRIPE_KEY"))

	db, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{os.Getenv("REDIS_URI")},
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	amqpBroker, err := broker.NewAMQPBroker(logger, os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	smtpAuth := smtp.PlainAuth("", os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_HOST"))

	authManager, err := auth.New(auth.Options{
		Redis:  rdb,
		Logger: logger,

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),

		Environment: authEnvironment,
		SMTPAuth:    smtpAuth,
		From:        os.Getenv("SMTP_FROM"),
		Hostname:    os.Getenv("SMTP_HOST") + ":" + os.Getenv("SMTP_PORT"),
		EmailOption: auth.EmailOption{
			Name: os.Getenv("SITE_NAME"),
			LinkGenerator: func(uid, token string) string {
				return fmt.Sprintf("%s/customer/%s/%s", os.Getenv("SITE_URL"), uid, token)
			},
		},
	})
	if err != nil {
		logger.Fatal("Cannot initialize AuthManager",
			zap.Error(err),
		)
	}

	customerManager, err := customer.NewManager(logger, db, stripeClient)
	if err != nil {
		logger.Fatal("Cannot initialize CustomerManager",
			zap.Error(err),
		)
	}

	planManager, err := plan.NewManager(plan.ManagerOptions{
		DB:           db,
		StripeClient: stripeClient,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize PlanManager",
			zap.Error(err),
		)
	}

	setupCtx := context.Background()
	if err := planManager.Seed(setupCtx); err != nil {
		logger.Fatal("Cannot seed default plans",
			zap.Error(err),
		)
	}
	if err := planManager.EnsureStripe(setupCtx); err != nil {
		logger.Fatal("Cannot ensure plans on Stripe",
			zap.Error(err),
		)
	}

	voucherManager, err := voucher.NewManager(voucher.ManagerOptions{
		DB:           db,
		StripeClient: stripeClient,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize VoucherManager",
			zap.Error(err),
		)
	}

	transactionManager, err := transaction.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize TransactionManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:              db,
		StripeClient:    stripeClient,
		Logger:          logger,
		PlanManager:     planManager,
		VoucherManager:  voucherManager,
		CustomerManager: customerManager,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	customerRouter, err := customer.NewService(customer.ServiceOptions{
		Auth:            authManager,
		CustomerManager: customerManager,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Customer Service Router",
			zap.Error(err),
		)
	}

	planRouter, err := plan.NewService(plan.ServiceOptions{
		PlanManager: planManager,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Plan Service Router",
			zap.Error(err),
		)
	}

	voucherRouter, err := voucher.NewService(voucher.ServiceOptions{
		VoucherManager: voucherManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Voucher Service Router",
			zap.Error(err),
		)
	}

	subscriptionRouter, err := subscription.NewService(subscription.ServiceOptions{
		SubscriptionManager: subscriptionManager,
		TransactionManager:  transactionManager,
		VoucherManager:      voucherManager,
		Producer:            amqpBroker,
		Auth:                authManager,
		Logger:              logger,
		WebhookSecret:       os.Getenv("STRIPE_WEBHOOK_SECRET"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("SITE_URL")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rootRouter.Mount("/customers", customerRouter.Router())
	rootRouter.Mount("/plans", planRouter.Router())
	rootRouter.Mount("/vouchers", voucherRouter.Router())
	rootRouter.Mount("/subscriptions", subscriptionRouter.Router())

	rootRouter.Route("/admin", func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(authManager.ClaimCheck())
		r.Use(auth.Require(auth.AdminOnly))

		r.Mount("/plans", planRouter.AdminRouter())
		r.Mount("/vouchers", voucherRouter.AdminRouter())
		r.Mount("/subscriptions", subscriptionRouter.AdminRouter())
	})

	rootRouter.HandleFunc("/pprof/*", pprof.Index)
	rootRouter.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	rootRouter.HandleFunc("/pprof/profile", pprof.Profile)
	rootRouter.HandleFunc("/pprof/symbol", pprof.Symbol)
	rootRouter.HandleFunc("/pprof/trace", pprof.Trace)

	addr := os.Getenv("API_ADDR")
	if len(addr) == 0 {
		addr = ":42069"
	}
	srv := &http.Server{
		Handler: rootRouter,
		Addr:    addr,
	}

	logger.Info("API started",
		zap.String("Addr", addr),
	)

	log.Fatalln(srv.ListenAndServe())
}
