package apihandlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API on router.
func RegisterRoutes(router gin.IRouter, h *APIHandler) {
	router.GET("/health", h.HealthHandler)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1", TenantMiddleware())
	{
		v1.GET("/balance", h.BalanceHandler)

		accountGroup := v1.Group("/account")
		{
			accountGroup.GET("", h.AccountHandler)
			accountGroup.POST("/topup", h.TopUpHandler)
			accountGroup.GET("/usage", h.ListUsageHandler)
			accountGroup.GET("/usage/summary", h.UsageSummaryHandler)
			accountGroup.GET("/transactions", h.ListTransactionsHandler)
		}

		productGroup := v1.Group("/products")
		{
			productGroup.POST("", h.AddProductHandler)
			productGroup.GET("", h.ListProductsHandler)
			productGroup.DELETE("/:id", h.DeleteProductHandler)
			productGroup.POST("/bulk", h.BulkAddProductsHandler)
			productGroup.POST("/bulk/async", h.EnqueueBulkImportHandler)
			productGroup.POST("/search", h.SearchProductsHandler)
		}

		v1.GET("/jobs/:id", h.JobStatusHandler)
	}
}
