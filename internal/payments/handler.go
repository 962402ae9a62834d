package payments

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/poolride/carpool/pkg/middleware"
	"github.com/poolride/carpool/pkg/models"
	"github.com/poolride/carpool/pkg/pagination"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

// Handler handles HTTP requests for payments
type Handler struct {
	service       *Service
	webhookSecret string
}

// NewHandler creates a new payments handler
func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

// RegisterRoutes registers the payment endpoints. The webhook is
// deliberately outside the auth group; it is verified by signature instead.
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	router.POST("/api/v1/payments/webhook", h.Webhook)

	payments := router.Group("/api/v1/payments")
	payments.Use(middleware.AuthMiddleware(jwtSecret))
	{
		payments.POST("", h.CreatePayment)
		payments.GET("/mine", h.ListMyPayments)
		payments.GET("/balance", h.GetBalance)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:id/confirm-cash", h.ConfirmCashPayment)
		payments.POST("/payouts", h.RequestPayout)
		payments.GET("/payouts/mine", h.ListMyPayouts)
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *Handler) CreatePayment(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := h.service.CreatePayment(c.Request.Context(), userID, &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.CreatedResponse(c, payment)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid payment ID")
		return
	}

	payment, err := h.service.GetPayment(c.Request.Context(), userID, paymentID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, payment)
}

// ConfirmCashPayment handles POST /api/v1/payments/:id/confirm-cash
func (h *Handler) ConfirmCashPayment(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid payment ID")
		return
	}

	payment, err := h.service.ConfirmCashPayment(c.Request.Context(), driverID, paymentID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, payment)
}

// ListMyPayments handles GET /api/v1/payments/mine
func (h *Handler) ListMyPayments(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	params := pagination.ParseParams(c)

	payments, total, err := h.service.ListMyPayments(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, payments, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// GetBalance handles GET /api/v1/payments/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	balance, err := h.service.GetBalance(c.Request.Context(), userID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"balance_cents": balance})
}

// RequestPayout handles POST /api/v1/payments/payouts
func (h *Handler) RequestPayout(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.RequestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.service.RequestPayout(c.Request.Context(), driverID, &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.CreatedResponse(c, payout)
}

// ListMyPayouts handles GET /api/v1/payments/payouts/mine
func (h *Handler) ListMyPayouts(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	params := pagination.ParseParams(c)

	payouts, total, err := h.service.ListMyPayouts(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, payouts, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// Webhook handles POST /api/v1/payments/webhook. Requests failing signature
// verification are rejected without processing.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		logger.Warn("rejected webhook with bad signature", zap.Error(err))
		common.ErrorResponse(c, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.service.ProcessEvent(c.Request.Context(), &event); err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"received": true})
}
