// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/domain/catalog/location"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/domain/procurement"
	"fieldstock/internal/domain/transfer"
	"fieldstock/internal/infrastructure/http/v1/handlers"
	"fieldstock/internal/infrastructure/http/v1/middleware"
	"fieldstock/internal/infrastructure/storage/postgres"
	"fieldstock/internal/infrastructure/storage/postgres/catalog_repo"
	"fieldstock/internal/infrastructure/storage/postgres/document_repo"
	"fieldstock/internal/infrastructure/storage/postgres/ledger_repo"
	"fieldstock/pkg/logger"
	"fieldstock/pkg/numerator"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the shared database connection pool (also used by health checks).
	Pool *postgres.Pool

	// TxManager runs repository operations in transactions.
	TxManager *postgres.TxManager

	// Logger for request logging.
	Logger *logger.Logger

	// Validator checks bearer tokens and resolves the organization.
	Validator middleware.TokenValidator

	// IdempotencyStore backs replay of mutating requests. Optional.
	IdempotencyStore *postgres.IdempotencyStore

	// AuditService serves entity change history. Optional.
	AuditService *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters).
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required).
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// Services are built once with the injected TxManager; the
	// organization scope travels in the request context.
	deps := buildDependencies(cfg)

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.Validator))
		if cfg.IdempotencyStore != nil {
			protected.Use(middleware.Idempotency(cfg.IdempotencyStore))
		}

		registerCatalogRoutes(protected, deps)
		registerStockRoutes(protected, deps)
		registerPurchaseRoutes(protected, deps)
		registerPartRequestRoutes(protected, deps)
		registerAuditRoutes(protected, cfg)
	}

	return router
}

// dependencies holds the wired domain services shared across handlers.
type dependencies struct {
	base        *handlers.BaseHandler
	itemSvc     *item.Service
	locationSvc *location.Service
	engine      *ledger.Engine
	aggregator  *ledger.Aggregator
	ledgerRepo  ledger.Repository
	purchaseSvc *procurement.Service
	partsSvc    *partsreq.Service
	coordinator *transfer.Coordinator
}

func buildDependencies(cfg RouterConfig) *dependencies {
	num := numerator.New(cfg.Pool.Pool)

	itemRepo := catalog_repo.NewItemRepo(cfg.TxManager)
	locationRepo := catalog_repo.NewLocationRepo(cfg.TxManager)
	ledgerRepo := ledger_repo.NewLedgerRepo(cfg.TxManager)
	purchaseRepo := document_repo.NewPurchaseRepo(cfg.TxManager)
	partsRepo := document_repo.NewPartsRepo(cfg.TxManager)

	itemSvc := item.NewService(itemRepo, cfg.TxManager, num)
	locationSvc := location.NewService(locationRepo, cfg.TxManager, num)
	purchaseSvc := procurement.NewService(purchaseRepo, cfg.TxManager, num)
	partsSvc := partsreq.NewService(partsRepo, cfg.TxManager, num)
	if cfg.AuditService != nil {
		purchaseSvc = purchaseSvc.WithAudit(cfg.AuditService)
		partsSvc = partsSvc.WithAudit(cfg.AuditService)
	}

	engine := ledger.NewEngine(ledgerRepo, itemRepo, locationRepo, partsSvc, cfg.TxManager)
	aggregator := ledger.NewAggregator(ledgerRepo, locationRepo, partsSvc)
	coordinator := transfer.NewCoordinator(engine, aggregator, itemRepo, locationRepo, purchaseSvc, partsSvc, cfg.TxManager)

	return &dependencies{
		base:        handlers.NewBaseHandler(),
		itemSvc:     itemSvc,
		locationSvc: locationSvc,
		engine:      engine,
		aggregator:  aggregator,
		ledgerRepo:  ledgerRepo,
		purchaseSvc: purchaseSvc,
		partsSvc:    partsSvc,
		coordinator: coordinator,
	}
}

// registerCatalogRoutes registers item and location catalog endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, deps *dependencies) {
	catalog := rg.Group("/catalog")

	itemHandler := handlers.NewItemHandler(deps.base, deps.itemSvc)
	itemHandler.RegisterRoutes(catalog.Group("/items"))

	locationHandler := handlers.NewLocationHandler(deps.base, deps.locationSvc)
	locationHandler.RegisterRoutes(catalog.Group("/locations"))
}

// registerStockRoutes registers ledger, balance, and movement endpoints.
func registerStockRoutes(rg *gin.RouterGroup, deps *dependencies) {
	stockHandler := handlers.NewStockHandler(
		deps.base, deps.coordinator, deps.engine, deps.aggregator, deps.ledgerRepo, deps.partsSvc,
	)
	stockHandler.RegisterRoutes(rg.Group("/stock"), middleware.RequireAdmin())
}

// registerPurchaseRoutes registers the purchase request workflow.
func registerPurchaseRoutes(rg *gin.RouterGroup, deps *dependencies) {
	purchaseHandler := handlers.NewPurchaseHandler(deps.base, deps.purchaseSvc, deps.coordinator)
	purchaseHandler.RegisterRoutes(rg.Group("/purchase-requests"))
}

// registerPartRequestRoutes registers the ticket part request workflow.
func registerPartRequestRoutes(rg *gin.RouterGroup, deps *dependencies) {
	partHandler := handlers.NewPartRequestHandler(deps.base, deps.partsSvc)
	partHandler.RegisterRoutes(rg.Group("/part-requests"))
}

// registerAuditRoutes registers entity history endpoints (admin only).
func registerAuditRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.AuditService == nil {
		return
	}

	auditHandler := handlers.NewAuditHandler(handlers.NewBaseHandler(), cfg.AuditService)
	audit := rg.Group("/audit")
	audit.Use(middleware.RequireAdmin())
	auditHandler.RegisterRoutes(audit)
}
