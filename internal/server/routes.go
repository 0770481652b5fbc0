package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ied/internal/apperrors"
	"ied/internal/models"
	"ied/internal/observability"
)

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	api.POST("/publishEvent", s.handlePublishEvent)
	api.POST("/subscribe", s.handleSubscribe)

	internal := s.router.Group("/internal")
	internal.POST("/eventNotification/:adapterName", s.handleEventNotification)
	internal.POST("/desmosNotification", s.handleDesmosNotification)
}

func writeAppError(c *gin.Context, err *apperrors.Error) {
	body := gin.H{"error": err.Kind, "message": err.Message, "timestamp": time.Now().UTC()}
	if err.Details != "" {
		body["details"] = err.Details
	}
	c.JSON(err.HTTPStatus(), body)
}

func (s *Server) handlePublishEvent(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.New(apperrors.KindValidation, "malformed request body").WithDetails(err.Error()))
		return
	}

	if verr := validatePublishRequest(req); verr != nil {
		writeAppError(c, verr)
		return
	}

	resp, perr := s.publisher.PublishToAll(c.Request.Context(), req)
	if perr != nil {
		writeAppError(c, perr)
		return
	}

	anySuccess := false
	for _, a := range resp.Adapters {
		if a.Success {
			anySuccess = true
			break
		}
	}
	if !anySuccess {
		writeAppError(c, apperrors.New(apperrors.KindAllAdaptersFailed, "all adapters rejected the publish request"))
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func validatePublishRequest(req models.PublishRequest) *apperrors.Error {
	if strings.TrimSpace(req.EventType) == "" {
		return apperrors.New(apperrors.KindValidation, "eventType is required")
	}
	if strings.TrimSpace(req.DataLocation) == "" {
		return apperrors.New(apperrors.KindValidation, "dataLocation is required")
	}
	if !strings.Contains(req.DataLocation, "hl=") {
		return apperrors.New(apperrors.KindValidation, "dataLocation must contain an hl query parameter")
	}
	if !models.IsBytes32Hex(req.EntityID) {
		return apperrors.New(apperrors.KindValidation, "entityId must be 0x-prefixed 64 hex characters")
	}
	if req.PreviousEntityHash != "" && !models.IsBytes32Hex(req.PreviousEntityHash) {
		return apperrors.New(apperrors.KindValidation, "previousEntityHash must be 0x-prefixed 64 hex characters")
	}
	return nil
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req models.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.New(apperrors.KindValidation, "malformed request body").WithDetails(err.Error()))
		return
	}

	if verr := validateSubscribeRequest(req); verr != nil {
		writeAppError(c, verr)
		return
	}

	callbackURL := fmt.Sprintf("%s/internal/desmosNotification", s.config.IEDBaseURL)
	resp := s.subscribers.Subscribe(c.Request.Context(), req, callbackURL)

	anySuccess := false
	for _, a := range resp.Adapters {
		if a.Success {
			anySuccess = true
			break
		}
	}
	if !anySuccess {
		writeAppError(c, apperrors.New(apperrors.KindAllAdaptersFailed, "all adapters rejected the subscribe request"))
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func validateSubscribeRequest(req models.SubscribeRequest) *apperrors.Error {
	if len(req.EventTypes) == 0 {
		return apperrors.New(apperrors.KindValidation, "eventTypes must contain at least one entry")
	}
	if strings.TrimSpace(req.NotificationEndpoint) == "" {
		return apperrors.New(apperrors.KindValidation, "notificationEndpoint is required")
	}
	if !strings.HasPrefix(req.NotificationEndpoint, "http://") && !strings.HasPrefix(req.NotificationEndpoint, "https://") {
		return apperrors.New(apperrors.KindValidation, "notificationEndpoint must be a URL")
	}
	return nil
}

// handleEventNotification receives an Event an adapter is reporting was
// published on its chain. Processing is fire-and-forget: it acknowledges
// immediately and runs replication asynchronously.
func (s *Server) handleEventNotification(c *gin.Context) {
	adapterName := c.Param("adapterName")

	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		writeAppError(c, apperrors.New(apperrors.KindValidation, "malformed event body").WithDetails(err.Error()))
		return
	}

	client, ok := s.registry.ByName(adapterName)
	if !ok {
		writeAppError(c, apperrors.New(apperrors.KindValidation, fmt.Sprintf("unknown adapter %q", adapterName)))
		return
	}
	sourceChain := client.ChainID()

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.replicator.HandleIncoming(ctx, event, sourceChain)
	}()
}

// handleDesmosNotification receives an Event an adapter is reporting that
// matches one of the engine's installed subscriptions. Fire-and-forget:
// acknowledges immediately and dispatches consumer notification
// asynchronously.
func (s *Server) handleDesmosNotification(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		writeAppError(c, apperrors.New(apperrors.KindValidation, "malformed event body").WithDetails(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.subscribers.HandleConsumerNotification(ctx, event); err != nil {
			s.logger.Error("consumer notification dispatch failed", zap.Error(err))
		}
	}()
}

type adapterHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	redisStatus := "UP"
	components := s.health.CheckHealth(ctx).Components
	if redis, ok := components["redis"]; ok && redis.Status != observability.StatusHealthy {
		redisStatus = "DOWN"
	}

	adapterResults := s.registry.HealthCheck(ctx)
	adapters := make([]adapterHealth, 0, len(adapterResults))
	allAdaptersHealthy := true
	for _, name := range s.registry.Names() {
		healthy := adapterResults[name]
		status := "UP"
		if !healthy {
			status = "DOWN"
			allAdaptersHealthy = false
		}
		adapters = append(adapters, adapterHealth{Name: name, Status: status})
	}

	overall := "UP"
	httpStatus := http.StatusOK
	switch {
	case redisStatus != "UP":
		overall = "DOWN"
		httpStatus = http.StatusServiceUnavailable
	case !allAdaptersHealthy:
		overall = "DEGRADED"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":        overall,
		"redis":         redisStatus,
		"adapters":      adapters,
		"subscriptions": s.subscribers.Count(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.cache.Stats(c.Request.Context())
	if err != nil {
		writeAppError(c, apperrors.Wrap(apperrors.KindCacheUnavailable, "fetching cache stats failed", err))
		return
	}

	deliveries := s.subscribers.Deliveries()
	deliveredOK, deliveredFailed := 0, 0
	for _, d := range deliveries {
		if d.Success {
			deliveredOK++
		} else {
			deliveredFailed++
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.JSON(http.StatusOK, gin.H{
		"cache":         stats,
		"subscriptions": s.subscribers.Count(),
		"adapters":      s.registry.Names(),
		"uptimeSeconds": time.Since(s.startedAt).Seconds(),
		"memory": gin.H{
			"allocBytes":      memStats.Alloc,
			"totalAllocBytes": memStats.TotalAlloc,
			"sysBytes":        memStats.Sys,
		},
		"notifications": gin.H{
			"delivered": deliveredOK,
			"failed":    deliveredFailed,
			"recent":    deliveries,
		},
	})
}
