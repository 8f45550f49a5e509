package main

import (
	"voicesurvey/internal/httpapi"
	"voicesurvey/internal/rbac"
	"voicesurvey/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, wh telephony.WebhookHandler, authMW gin.HandlerFunc, assetDir string) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Gateway webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	r.POST(telephony.TurnPath, wh.HandleTurn)
	r.POST(telephony.StatusPath, wh.HandleStatus)

	// Pre-rendered prompt audio, fetched by the gateway when <Play> is used.
	if assetDir != "" {
		r.Static("/audio", assetDir)
	}

	v1 := r.Group("/v1")

	// Token issuance stays outside the auth middleware.
	v1.POST("/auth/login", h.Login)

	api := v1.Group("")
	api.Use(authMW)
	{
		reads := rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleAnalyst)
		writes := rbac.RequireAnyRole(rbac.RoleOperator)

		surveys := api.Group("/surveys")
		{
			surveys.POST("", writes, h.CreateSurvey)
			surveys.GET("/:survey_id/questions", reads, h.ListQuestions)
		}
		api.POST("/questions", writes, h.CreateQuestion)

		recipients := api.Group("/recipients")
		{
			recipients.POST("", writes, h.CreateRecipient)
			recipients.GET("/:recipient_id/responses", reads, h.ListResponses)
		}

		calls := api.Group("/calls")
		{
			calls.POST("", writes, h.EnqueueCall)
			calls.GET("", reads, h.ListAttempts)
			calls.GET("/:attempt_id", reads, h.GetAttempt)
			calls.POST("/:attempt_id/start", writes, h.StartCall)
			calls.POST("/:attempt_id/retry", writes, h.RetryCall)
		}

		admin := api.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/consolidate", h.Consolidate)
			admin.POST("/seed-responses", h.SeedResponses)
		}
	}
}
