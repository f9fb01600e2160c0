package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"registration-service/config"
	"registration-service/internal/gateway"
	"registration-service/internal/models"
	"registration-service/internal/redisclient"
	"registration-service/internal/service"
	"registration-service/internal/store"
	"registration-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	registrations *service.RegistrationService
	checkout      *service.CheckoutService
	webhooks      *service.WebhookService
	limiter       *redisclient.Client
	cfg           *config.Config
}

// NewHandler creates a new HTTP handler. limiter may be nil; rate limiting
// is optional middleware, never correctness-critical.
func NewHandler(
	registrations *service.RegistrationService,
	checkout *service.CheckoutService,
	webhooks *service.WebhookService,
	limiter *redisclient.Client,
	cfg *config.Config,
) *Handler {
	return &Handler{
		registrations: registrations,
		checkout:      checkout,
		webhooks:      webhooks,
		limiter:       limiter,
		cfg:           cfg,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		limited := v1.Group("", h.rateLimitMiddleware())
		limited.POST("/registrations", h.createRegistration)
		limited.POST("/registrations/group", h.createGroupRegistration)
		limited.POST("/quote", h.quote)
		limited.POST("/checkout", h.initiateCheckout)

		v1.GET("/events", h.listEvents)
		v1.GET("/registrations/:id", h.getRegistration)
		v1.POST("/webhooks/stripe", h.stripeWebhook)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

// CreateRegistrationRequest is the solo registration payload
type CreateRegistrationRequest struct {
	EventID    int64                     `json:"event_id" binding:"required"`
	Registrant service.RegistrantRequest `json:"registrant" binding:"required"`
}

// CreateGroupRegistrationRequest is the group registration payload
type CreateGroupRegistrationRequest struct {
	EventID     int64                        `json:"event_id" binding:"required"`
	Registrants []*service.RegistrantRequest `json:"registrants" binding:"required,min=1,dive"`
}

// CheckoutRequest targets exactly one of a registration or a group
type CheckoutRequest struct {
	RegistrationID *int64  `json:"registration_id,omitempty"`
	GroupID        *string `json:"group_id,omitempty"`
}

func (h *Handler) createRegistration(c *gin.Context) {
	var req CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	reg, err := h.registrations.CreateRegistration(c.Request.Context(), req.EventID, &req.Registrant)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *Handler) createGroupRegistration(c *gin.Context) {
	var req CreateGroupRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	regs, pricingResult, err := h.registrations.CreateGroupRegistration(c.Request.Context(), req.EventID, req.Registrants)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"registrations": regs,
		"pricing":       pricingResult,
	})
}

func (h *Handler) quote(c *gin.Context) {
	var req CreateGroupRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	quote, err := h.registrations.Quote(c.Request.Context(), req.EventID, req.Registrants)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) listEvents(c *gin.Context) {
	events, err := h.registrations.ListActiveEvents(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) getRegistration(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration ID"})
		return
	}

	reg, err := h.registrations.GetRegistration(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (h *Handler) initiateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if (req.RegistrationID == nil) == (req.GroupID == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Exactly one of registration_id or group_id is required"})
		return
	}

	var (
		resp *service.CheckoutResponse
		err  error
	)
	if req.RegistrationID != nil {
		resp, err = h.checkout.InitiateCheckout(c.Request.Context(), *req.RegistrationID)
	} else {
		resp, err = h.checkout.InitiateGroupCheckout(c.Request.Context(), *req.GroupID)
	}
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// stripeWebhook receives provider events. It always acknowledges with 200
// once the state machine has durably handled the event, 400 for a missing
// or invalid signature, and 500 only for misconfiguration or genuine
// infrastructure failure.
func (h *Handler) stripeWebhook(c *gin.Context) {
	logger := util.GetLogger()

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	var event models.ProviderEvent
	secret := h.cfg.Stripe.WebhookSecret
	if secret == "" {
		if !h.cfg.InsecureWebhookBypassAllowed() {
			logger.Error("Stripe webhook secret is not configured; refusing unverified event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook signing secret not configured"})
			return
		}
		logger.Warn("Accepting UNVERIFIED webhook (development bypass)")
		event, err = gateway.ParseUnverifiedWebhook(payload)
	} else {
		event, err = gateway.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"), secret)
	}
	if err != nil {
		logger.Warn("Rejected webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature or payload"})
		return
	}

	result, err := h.webhooks.HandleEvent(c.Request.Context(), event)
	if err != nil {
		logger.Error("Webhook processing failed",
			zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// writeServiceError maps service errors to HTTP statuses. Registrants get
// generic messages; detail stays in the structured logs.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrAlreadyConfirmed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registration is already confirmed"})
	case errors.Is(err, service.ErrNoPaymentRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No payment is required for this registration"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		util.GetLogger().Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again"})
	}
}

// rateLimitMiddleware applies the Redis token bucket per client IP and
// fails open: a limiter outage never takes the public API down with it.
func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}

		allowed, err := h.limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			util.GetLogger().Warn("Rate limiter unavailable, failing open", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			util.RateLimitedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
