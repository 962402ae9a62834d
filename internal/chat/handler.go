package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/middleware"
	"github.com/poolride/carpool/pkg/models"
	"github.com/poolride/carpool/pkg/pagination"
)

// Handler handles HTTP requests for chat
type Handler struct {
	service *Service
}

// NewHandler creates a new chat handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the chat endpoints
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	conversations := router.Group("/api/v1/conversations")
	conversations.Use(middleware.AuthMiddleware(jwtSecret))
	{
		conversations.GET("", h.ListConversations)
		conversations.GET("/:id/messages", h.ListMessages)
		conversations.POST("/:id/messages", h.SendMessage)
	}
}

// ListConversations handles GET /api/v1/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	params := pagination.ParseParams(c)

	conversations, total, err := h.service.ListConversations(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, conversations, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// ListMessages handles GET /api/v1/conversations/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	params := pagination.ParseParams(c)

	messages, total, err := h.service.ListMessages(c.Request.Context(), userID, conversationID, params.Limit, params.Offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, messages, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// SendMessage handles POST /api/v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), userID, conversationID, req.Body)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.CreatedResponse(c, msg)
}
