package fulfillment

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospitalflow/logistics/internal/domain/inventory"
	"github.com/hospitalflow/logistics/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole("admin", "dispatcher"))
	write.POST("/fulfillment/accept", h.Accept)
}

func (h *Handler) Accept(c echo.Context) error {
	var req AcceptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.AcceptSuggestion(c.Request().Context(), req)
	switch {
	case errors.Is(err, inventory.ErrItemNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "inventory item not found")
	case errors.Is(err, ErrNothingToOrder):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}
