package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/costwise/costwise/internal/amqp"
	"github.com/costwise/costwise/internal/config"
	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/activity"
	"github.com/costwise/costwise/pkg/allocation"
	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/docimport"
	"github.com/costwise/costwise/pkg/google"
	"github.com/costwise/costwise/pkg/invoice"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/profiler"
	"github.com/costwise/costwise/pkg/project"
	"github.com/costwise/costwise/pkg/report"
	"github.com/costwise/costwise/pkg/user"
	"github.com/costwise/costwise/pkg/variation"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus *event_bus.EventBus
	Clock    utils.Clock

	UserService user.Service
	UserHandler *user.Handler

	GoogleAuth *google.GoogleAuth

	ProjectService project.Service
	ProjectHandler *project.Handler

	AllocationHandler *allocation.Handler

	CostPlanRepo    costplan.Repository
	CostPlanService costplan.Service
	CostPlanHandler *costplan.Handler

	VariationRepo    variation.Repository
	VariationService variation.Service
	VariationHandler *variation.Handler

	InvoiceRepo    invoice.Repository
	InvoiceService invoice.Service
	InvoiceHandler *invoice.Handler

	CatalogStore    *profiler.CatalogStore
	ProfilerService profiler.Service
	ProfilerHandler *profiler.Handler

	MatchResolver match.Resolver

	ImportQueue   *amqp.Client
	ImportService docimport.Service
	ImportHandler *docimport.Handler

	ReportService     report.Service
	CsvReportRenderer *report.CsvReportRendererImpl
	ReportHandler     *report.Handler

	ActivityRecorder *activity.Recorder
	ActivityService  activity.Service
	ActivityHandler  *activity.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(ctx context.Context, db *sql.DB, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.EventBus = event_bus.NewEventBus()
	deps.Clock = &utils.SystemClock{}

	deps.UserService = user.NewUserService(user.NewUserRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.GoogleAuth = google.NewGoogleAuth(db, cfg)

	deps.ProjectService = project.NewProjectService(project.NewProjectRepo(db), deps.Clock)
	deps.ProjectHandler = project.NewProjectHandler(deps.ProjectService)

	deps.AllocationHandler = allocation.NewAllocationHandler()

	deps.CostPlanRepo = costplan.NewCostPlanRepo(db)
	deps.VariationRepo = variation.NewVariationRepo(db)
	deps.InvoiceRepo = invoice.NewInvoiceRepo(db)

	deps.CostPlanService = costplan.NewCostPlanService(deps.CostPlanRepo, deps.VariationRepo, deps.InvoiceRepo, deps.EventBus, deps.Clock)
	deps.CostPlanHandler = costplan.NewCostPlanHandler(deps.CostPlanService)

	deps.VariationService = variation.NewVariationService(deps.VariationRepo, deps.EventBus, deps.Clock)
	deps.VariationHandler = variation.NewVariationHandler(deps.VariationService)

	deps.InvoiceService = invoice.NewInvoiceService(deps.InvoiceRepo, deps.EventBus, deps.Clock)
	deps.InvoiceHandler = invoice.NewInvoiceHandler(deps.InvoiceService)

	catalog, err := profiler.LoadCatalogStore(cfg.Rates.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate catalog from %s: %w", cfg.Rates.Path, err)
	}
	deps.CatalogStore = catalog
	deps.ProfilerService = profiler.NewProfilerService(profiler.NewProfileRepo(db), catalog, deps.Clock)
	deps.ProfilerHandler = profiler.NewProfilerHandler(deps.ProfilerService)

	// MatchResolver stays a nil interface unless construction succeeds, so
	// the import service's nil check keeps working.
	if cfg.AI.ApiKey != "" {
		resolver, err := match.NewGeminiResolver(ctx, cfg.AI.ApiKey, cfg.AI.Model)
		if err != nil {
			log.Warnf("AI cost line matching disabled: %v", err)
		} else {
			deps.MatchResolver = resolver
		}
	}

	var importQueue docimport.ImportQueue
	if cfg.AMQP.Url != "" {
		client, err := amqp.NewClient(cfg.AMQP.Url, cfg.AMQP.Exchange, cfg.AMQP.Queue)
		if err != nil {
			log.Warnf("Import queue disabled: %v", err)
		} else {
			deps.ImportQueue = client
			importQueue = client
		}
	}

	deps.ImportService = docimport.NewImportService(deps.CostPlanService, deps.VariationService, deps.InvoiceService, deps.MatchResolver, deps.EventBus)
	deps.ImportHandler = docimport.NewImportHandler(deps.ImportService, importQueue)

	var rows report.RowWriter
	if cfg.Google.ClientId != "" {
		rows = google.NewSheetsWriter(deps.GoogleAuth)
	}
	deps.ReportService = report.NewReportService(deps.ProjectService, deps.CostPlanService, deps.InvoiceService, rows, deps.Clock)
	deps.CsvReportRenderer = report.NewCsvReportRenderer()
	deps.ReportHandler = report.NewReportHandler(deps.ReportService, deps.CsvReportRenderer)

	activityRepo := activity.NewActivityRepo(db)
	deps.ActivityRecorder = activity.NewRecorder(activityRepo, deps.Clock)
	deps.ActivityRecorder.Register(deps.EventBus)
	deps.ActivityService = activity.NewActivityService(activityRepo)
	deps.ActivityHandler = activity.NewActivityHandler(deps.ActivityService)

	return deps, nil
}
