package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/costwise/costwise/internal/amqp"
	"github.com/costwise/costwise/internal/config"
	"github.com/costwise/costwise/internal/database"
	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/internal/worker"
	"github.com/costwise/costwise/pkg/activity"
	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/docimport"
	"github.com/costwise/costwise/pkg/invoice"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/user"
	"github.com/costwise/costwise/pkg/variation"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level != "" {
		logrusLevel, err := log.ParseLevel(level)
		if err != nil {
			log.Fatal(err)
		}
		log.SetLevel(logrusLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	// Local development reads settings from a .env file when present.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// The server applies migrations; the worker only expects the schema
	// to already be in place.
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	clock := &utils.SystemClock{}
	eventBus := event_bus.NewEventBus()

	users := user.NewUserService(user.NewUserRepo(db))

	planRepo := costplan.NewCostPlanRepo(db)
	variationRepo := variation.NewVariationRepo(db)
	invoiceRepo := invoice.NewInvoiceRepo(db)

	plan := costplan.NewCostPlanService(planRepo, variationRepo, invoiceRepo, eventBus, clock)
	variations := variation.NewVariationService(variationRepo, eventBus, clock)
	invoices := invoice.NewInvoiceService(invoiceRepo, eventBus, clock)

	var resolver match.Resolver
	if cfg.AI.ApiKey != "" {
		geminiResolver, err := match.NewGeminiResolver(ctx, cfg.AI.ApiKey, cfg.AI.Model)
		if err != nil {
			log.Warnf("AI cost line matching disabled: %v", err)
		} else {
			defer geminiResolver.Close()
			resolver = geminiResolver
		}
	}

	importer := docimport.NewImportService(plan, variations, invoices, resolver, eventBus)

	// Queued imports show up in the activity log like interactive ones.
	activity.NewRecorder(activity.NewActivityRepo(db), clock).Register(eventBus)

	client, err := amqp.NewClient(cfg.AMQP.Url, cfg.AMQP.Exchange, cfg.AMQP.Queue)
	if err != nil {
		log.Fatalf("failed to connect to the message broker: %v", err)
	}
	defer client.Close()

	deliveries, err := client.Consume()
	if err != nil {
		log.Fatalf("failed to start consuming import messages: %v", err)
	}

	if err := worker.NewWorker(users, importer).Run(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
