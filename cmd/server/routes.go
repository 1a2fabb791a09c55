package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/middleware"
	"github.com/huangang/larkticket/pkg/logger"
	"github.com/huangang/larkticket/pkg/response"
)

const healthcheckPath = "/healthcheck"

// registerRoutes sets up all HTTP routes on the given Gin engine and returns
// the Lark rate limiter so it can be stopped on shutdown.
func registerRoutes(r *gin.Engine, svc *appServices) *middleware.RateLimiter {
	r.Use(middleware.RequestID(), logger.GinLogger(healthcheckPath), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = true
	r.Use(middleware.CORS())

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, fmt.Sprintf("[%s] Not Found", c.Request.URL.Path))
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c, fmt.Sprintf("[%s %s] Method Not Allowed", c.Request.Method, c.Request.URL.Path))
	})

	r.GET(healthcheckPath, svc.healthHandler.Healthcheck)
	r.GET("/readiness", svc.healthHandler.Readiness)

	v1 := r.Group("/api/v1")

	var recorder middleware.OperationRecorder
	if svc.operationLogs != nil {
		recorder = svc.operationLogs
	}

	// Admin console
	web := v1.Group("/web", middleware.AuthRequired(svc.cfg.Auth.Enabled), middleware.AuditLog(recorder))
	{
		web.GET("/configs", svc.configHandler.List)
		web.GET("/config/:approval_code", svc.configHandler.Get)
		web.POST("/config", svc.configHandler.Create)
		web.PUT("/config", svc.configHandler.Update)
		web.DELETE("/config/:approval_code", svc.configHandler.Delete)
		web.GET("/lark/approval/fields", svc.configHandler.ApprovalFields)
		web.GET("/operation_logs", svc.operationLogHandler.List)
	}

	// Lark and external systems, public behind a rate limit
	larkLimiter := middleware.NewRateLimiter(20, 40)
	larkGroup := v1.Group("/lark", larkLimiter.Middleware())
	{
		larkGroup.POST("/callback", svc.larkHandler.Callback)
		larkGroup.POST("/check/callback", svc.larkHandler.CheckCallback)
		larkGroup.POST("/execute/callback", svc.larkHandler.ExecuteCallback)
		larkGroup.GET("/field/:approval_code/:field_code", svc.larkHandler.ExternalField)
		larkGroup.POST("/field/:approval_code/:field_code", svc.larkHandler.ExternalField)
	}

	return larkLimiter
}
