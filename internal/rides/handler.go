package rides

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/middleware"
	"github.com/poolride/carpool/pkg/models"
	"github.com/poolride/carpool/pkg/pagination"
)

// Handler handles HTTP requests for rides
type Handler struct {
	service *Service
}

// NewHandler creates a new rides handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the ride endpoints
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	rides := router.Group("/api/v1/rides")
	rides.Use(middleware.AuthMiddleware(jwtSecret))
	{
		rides.POST("", h.CreateRide)
		rides.GET("/search", h.SearchRides)
		rides.GET("/mine", h.ListMyRides)
		rides.GET("/:id", h.GetRide)
		rides.PATCH("/:id", h.UpdateRide)
		rides.PATCH("/:id/status", h.UpdateStatus)
		rides.DELETE("/:id", h.DeleteRide)
	}
}

// CreateRide handles POST /api/v1/rides
func (h *Handler) CreateRide(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.CreateRide(c.Request.Context(), driverID, &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.CreatedResponse(c, ride)
}

// SearchRides handles GET /api/v1/rides/search
func (h *Handler) SearchRides(c *gin.Context) {
	var req models.SearchRidesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	params := pagination.Clamp(pagination.Params{Limit: req.Limit, Offset: req.Offset})
	req.Limit = params.Limit
	req.Offset = params.Offset

	results, total, err := h.service.SearchRides(c.Request.Context(), &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, results, pagination.BuildMeta(req.Limit, req.Offset, total))
}

// ListMyRides handles GET /api/v1/rides/mine
func (h *Handler) ListMyRides(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	params := pagination.ParseParams(c)

	rides, total, err := h.service.ListMyRides(c.Request.Context(), driverID, params.Limit, params.Offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, rides, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// GetRide handles GET /api/v1/rides/:id
func (h *Handler) GetRide(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride ID")
		return
	}

	ride, err := h.service.GetRide(c.Request.Context(), rideID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, ride)
}

// UpdateRide handles PATCH /api/v1/rides/:id
func (h *Handler) UpdateRide(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride ID")
		return
	}

	var req models.UpdateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.UpdateRide(c.Request.Context(), driverID, rideID, &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, ride)
}

type updateStatusRequest struct {
	Status models.RideStatus `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /api/v1/rides/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride ID")
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.UpdateStatus(c.Request.Context(), driverID, rideID, req.Status)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, ride)
}

// DeleteRide handles DELETE /api/v1/rides/:id
func (h *Handler) DeleteRide(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride ID")
		return
	}

	if err := h.service.DeleteRide(c.Request.Context(), driverID, rideID); err != nil {
		common.HandleError(c, err)
		return
	}

	common.NoContentResponse(c)
}
