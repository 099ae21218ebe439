package identity

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/auth"
	"github.com/inkbook/inkbook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts sign-up and login on the public group and the
// user endpoints on the authenticated group.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/signup", h.SignUp)
	public.POST("/auth/login", h.Login)

	anyone := api.Group("/users", auth.RequireRole(auth.RoleClient, auth.RoleProvider, auth.RoleSuperadmin))
	anyone.GET("/me", h.GetProfile)
	anyone.PUT("/me", h.UpdateProfile)
	anyone.GET("/providers", h.ListProviders)

	admin := api.Group("/users", auth.RequireRole(auth.RoleSuperadmin))
	admin.GET("", h.ListUsers)
	admin.PUT("/:id/role", h.ChangeRole)
	admin.DELETE("/:id", h.DeleteUser)
}

type createdResponse struct {
	ID uuid.UUID `json:"id"`
}

func identity(c echo.Context) (auth.Identity, error) {
	id, found := auth.IdentityFromContext(c.Request().Context())
	if !found {
		return auth.Identity{}, apperr.Unauthorized("authentication required")
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	return nil
}

func (h *Handler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.SignUp(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createdResponse{ID: u.ID})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Profile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var p ProfilePatch
	if err := bind(c, &p); err != nil {
		return err
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListProviders(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	includeDeleted, _ := strconv.ParseBool(c.QueryParam("include_deleted"))
	items, err := h.svc.ListProviders(c.Request().Context(), id, includeDeleted)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListUsers(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path))
}

func userID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid user id")
	}
	return id, nil
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req ChangeRoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.ChangeRole(c.Request().Context(), id, uid, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	uid, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUser(c.Request().Context(), id, uid); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
