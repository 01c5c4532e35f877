// Package main provides the LINE bot server entry point.
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AceNexus/LineBot/internal/buildinfo"
	"github.com/AceNexus/LineBot/internal/config"
	"github.com/AceNexus/LineBot/internal/genai"
	"github.com/AceNexus/LineBot/internal/storage"
	"github.com/AceNexus/LineBot/internal/webhook"
)

// setupRoutes configures all HTTP routes
func setupRoutes(router *gin.Engine, cfg *config.Config, webhookHandler *webhook.Handler, db *storage.DB, ai *genai.Client, registry *prometheus.Registry) {
	rootHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "linebot", "version": buildinfo.Version})
	}
	router.GET("/", rootHandler)
	router.HEAD("/", rootHandler)

	// Liveness probe - process is up, no dependency checks
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/healthz", healthHandler)
	router.HEAD("/healthz", healthHandler)

	// Readiness probe - full dependency check
	readyHandler := func(c *gin.Context) {
		database := "disabled"
		if db != nil {
			if err := db.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"reason": err.Error(),
				})
				return
			}
			database = "connected"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ready",
			"database": database,
			"ai":       ai.Enabled(),
		})
	}
	router.GET("/readyz", readyHandler)
	router.HEAD("/readyz", readyHandler)

	// LINE webhook callback endpoint
	router.POST("/webhook", webhookHandler.Handle)

	// Prometheus metrics endpoint, behind basic auth when a password is set
	metricsHandler := gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if cfg.MetricsPassword != "" {
		auth := gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword})
		router.GET("/metrics", auth, metricsHandler)
	} else {
		router.GET("/metrics", metricsHandler)
	}
}
