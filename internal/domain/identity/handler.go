package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medleads/medleads/internal/platform/auth"
	"github.com/medleads/medleads/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts signup/login on the public group and agent
// management on the authenticated group.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.POST("/auth/signup", h.Signup)
	public.POST("/auth/login", h.Login)

	organiser := api.Group("", auth.RequireOrganiser())
	organiser.GET("/agents", h.ListAgents)
	organiser.POST("/agents", h.CreateAgent)
	organiser.GET("/agents/:id", h.GetAgent)
	organiser.DELETE("/agents/:id", h.DeleteAgent)
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
			"field": ve.Field, "message": ve.Message,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Scope resolves the caller's data scope from the authenticated user ID.
func (h *Handler) Scope(c echo.Context) (Scope, error) {
	uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return Scope{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	scope, err := h.svc.ResolveScope(c.Request().Context(), uid)
	if err != nil {
		return Scope{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return scope, nil
}

func (h *Handler) Signup(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, profile, err := h.svc.RegisterOrganiser(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"user":         user,
		"organisation": profile,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, user, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (h *Handler) ListAgents(c echo.Context) error {
	scope, err := h.Scope(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAgents(c.Request().Context(), scope, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateAgent(c echo.Context) error {
	scope, err := h.Scope(c)
	if err != nil {
		return err
	}
	var in CreateAgentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	agent, err := h.svc.CreateAgent(c.Request().Context(), scope, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, agent)
}

func (h *Handler) GetAgent(c echo.Context) error {
	scope, err := h.Scope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	agent, err := h.svc.GetAgent(c.Request().Context(), scope, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

func (h *Handler) DeleteAgent(c echo.Context) error {
	scope, err := h.Scope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAgent(c.Request().Context(), scope, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
