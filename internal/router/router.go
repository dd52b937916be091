// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/javajoker/royalty-backend/internal/config"
	"github.com/javajoker/royalty-backend/internal/database"
	"github.com/javajoker/royalty-backend/internal/handlers"
	"github.com/javajoker/royalty-backend/internal/middleware"
	"github.com/javajoker/royalty-backend/internal/services"
	"github.com/javajoker/royalty-backend/internal/telemetry"
	"github.com/javajoker/royalty-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config, storage services.FileStorage) *gin.Engine {
	// Initialize services
	catalogService := services.NewCatalogService(db)
	contractService := services.NewContractService(db, storage)
	importService := services.NewSalesImportService(db, storage)
	royaltyService := services.NewRoyaltyService(db)
	settlementService := services.NewSettlementService(db, storage, services.NewInvoiceRenderer(cfg.Royalty), cfg.Royalty)

	// Initialize handlers
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	contractHandler := handlers.NewContractHandler(contractService, cfg.MaxUploadBytes())
	salesHandler := handlers.NewSalesHandler(importService, cfg.MaxUploadBytes())
	royaltyHandler := handlers.NewRoyaltyHandler(royaltyService, settlementService)
	paymentHandler := handlers.NewPaymentHandler(settlementService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(telemetry.Middleware())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if err := database.Ping(c.Request.Context(), db); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired(), middleware.GeneralRateLimit())
	{
		// Catalog routes
		v1.POST("/authors", catalogHandler.CreateAuthor)
		v1.GET("/authors", catalogHandler.ListAuthors)
		v1.POST("/books", catalogHandler.CreateBook)
		v1.GET("/books", catalogHandler.ListBooks)
		v1.POST("/marketplaces", catalogHandler.CreateMarketplace)
		v1.GET("/marketplaces", catalogHandler.ListMarketplaces)

		// Contract routes
		contracts := v1.Group("/contracts")
		{
			contracts.POST("", middleware.UploadRateLimit(), contractHandler.SubmitContract)
			contracts.GET("", contractHandler.ListContracts)
			contracts.POST("/expire", contractHandler.ExpireContracts)
			contracts.GET("/:id", contractHandler.GetContract)
			contracts.PUT("/:id/approve", contractHandler.ApproveContract)
			contracts.PUT("/:id/reject", contractHandler.RejectContract)
		}

		// Sales routes
		sales := v1.Group("/sales")
		{
			sales.POST("/import", middleware.UploadRateLimit(), salesHandler.ImportSales)
			sales.GET("/imports", salesHandler.ListImports)
			sales.GET("/imports/:id", salesHandler.GetImport)
			sales.GET("/imports/:id/errors", salesHandler.DownloadErrorReport)
		}

		// Royalty routes
		royalties := v1.Group("/royalties")
		{
			royalties.POST("/calculate", royaltyHandler.Calculate)
			royalties.GET("", royaltyHandler.List)
			royalties.GET("/:id", royaltyHandler.Get)
			royalties.GET("/:id/corrections", royaltyHandler.Corrections)
			royalties.PUT("/:id/finalize", royaltyHandler.Finalize)
			royalties.PUT("/:id/items/:itemId", royaltyHandler.CorrectItem)
			royalties.POST("/:id/invoice", royaltyHandler.GenerateInvoice)
		}

		// Payment routes
		payments := v1.Group("/payments")
		{
			payments.GET("", paymentHandler.ListPayments)
			payments.GET("/:id", paymentHandler.GetPayment)
			payments.GET("/:id/invoice", paymentHandler.DownloadInvoice)
			payments.PUT("/:id/mark-paid", paymentHandler.MarkPaid)
		}
	}

	return r
}
