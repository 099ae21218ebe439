package booking

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the appointment routes on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments", auth.RequireRole(auth.RoleClient, auth.RoleProvider, auth.RoleSuperadmin))
	g.POST("", h.CreateAppointment)
	g.GET("", h.ListAppointments)
	g.POST("/availability", h.CheckAvailability)
	g.POST("/filter", h.FilterAppointments)
	g.GET("/:id", h.GetAppointment)
	g.PUT("/:id", h.UpdateAppointment)
	g.DELETE("/:id", h.DeleteAppointment)
}

type createdResponse struct {
	ID uuid.UUID `json:"id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

var okResponse = statusResponse{Status: "ok"}

func identity(c echo.Context) (auth.Identity, error) {
	id, found := auth.IdentityFromContext(c.Request().Context())
	if !found {
		return auth.Identity{}, apperr.Unauthorized("authentication required")
	}
	return id, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid appointment id")
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	return nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createdResponse{ID: a.ID})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	agenda, err := h.svc.List(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agenda)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	apptID, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id, apptID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	apptID, err := pathID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := bind(c, &p); err != nil {
		return err
	}
	if _, err := h.svc.Edit(c.Request().Context(), id, apptID, p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okResponse)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	apptID, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id, apptID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okResponse)
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	var req AvailabilityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.CheckAvailability(c.Request().Context(), req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okResponse)
}

func (h *Handler) FilterAppointments(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var crit FilterCriteria
	if err := bind(c, &crit); err != nil {
		return err
	}
	items, err := h.svc.Filter(c.Request().Context(), id, crit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}
