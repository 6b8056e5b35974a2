package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// Lead ingestion and reads
	router.POST("/leads", handler.SubmitLead)
	router.GET("/leads/:id", handler.GetLead)

	// Inbound CRM status updates (HMAC signed)
	router.POST("/webhook/crm", handler.HandleCRMWebhook)
}
