package bookings

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/middleware"
	"github.com/poolride/carpool/pkg/models"
	"github.com/poolride/carpool/pkg/pagination"
)

// Handler handles HTTP requests for bookings
type Handler struct {
	service *Service
}

// NewHandler creates a new bookings handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the booking endpoints
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtSecret))
	{
		v1.POST("/bookings", h.BookRide)
		v1.GET("/bookings/mine", h.ListMine)
		v1.POST("/bookings/:id/accept", h.AcceptBooking)
		v1.POST("/bookings/:id/reject", h.RejectBooking)
		v1.GET("/rides/:id/bookings", h.ListForRide)
	}
}

// BookRide handles POST /api/v1/bookings
func (h *Handler) BookRide(c *gin.Context) {
	passengerID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.BookRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := h.service.BookRide(c.Request.Context(), passengerID, &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.CreatedResponse(c, booking)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept
func (h *Handler) AcceptBooking(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid booking ID")
		return
	}

	booking, err := h.service.AcceptBooking(c.Request.Context(), driverID, bookingID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, booking)
}

// RejectBooking handles POST /api/v1/bookings/:id/reject
func (h *Handler) RejectBooking(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid booking ID")
		return
	}

	booking, err := h.service.RejectBooking(c.Request.Context(), driverID, bookingID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, booking)
}

// ListForRide handles GET /api/v1/rides/:id/bookings
func (h *Handler) ListForRide(c *gin.Context) {
	callerID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride ID")
		return
	}

	bookings, err := h.service.ListForRide(c.Request.Context(), callerID, rideID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, bookings)
}

// ListMine handles GET /api/v1/bookings/mine
func (h *Handler) ListMine(c *gin.Context) {
	passengerID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	params := pagination.ParseParams(c)

	bookings, total, err := h.service.ListMine(c.Request.Context(), passengerID, params.Limit, params.Offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, bookings, pagination.BuildMeta(params.Limit, params.Offset, total))
}
