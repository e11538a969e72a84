package patients

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medleads/medleads/internal/domain/identity"
	"github.com/medleads/medleads/internal/platform/auth"
	"github.com/medleads/medleads/internal/platform/blobstore"
	"github.com/medleads/medleads/pkg/pagination"
)

// ScopeResolver maps an authenticated user to their data scope.
// identity.Service satisfies it.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, userID uuid.UUID) (identity.Scope, error)
}

type Handler struct {
	svc    *Service
	scopes ScopeResolver
}

func NewHandler(svc *Service, scopes ScopeResolver) *Handler {
	return &Handler{svc: svc, scopes: scopes}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
	api.PUT("/patients/:id/category", h.UpdatePatientCategory)

	api.GET("/patients/:id/followups", h.ListFollowUps)
	api.POST("/patients/:id/followups", h.CreateFollowUp)
	api.GET("/followups/:id", h.GetFollowUp)
	api.PUT("/followups/:id", h.UpdateFollowUp)
	api.DELETE("/followups/:id", h.DeleteFollowUp)

	api.GET("/followups/:id/attachments", h.ListAttachments)
	api.POST("/followups/:id/attachments", h.AddAttachment)
	api.GET("/attachments/:id", h.DownloadAttachment)
	api.DELETE("/attachments/:id", h.DeleteAttachment)

	api.GET("/categories", h.ListCategories)
	api.GET("/categories/:id", h.GetCategory)

	organiser := api.Group("", auth.RequireOrganiser())
	organiser.GET("/dashboard", h.Dashboard)
	organiser.POST("/patients", h.CreatePatient)
	organiser.GET("/patients/export", h.Export)
	organiser.POST("/patients/:id/assign-agent", h.AssignAgent)
	organiser.POST("/categories", h.CreateCategory)
	organiser.PUT("/categories/:id", h.RenameCategory)
	organiser.DELETE("/categories/:id", h.DeleteCategory)
}

func (h *Handler) scope(c echo.Context) (identity.Scope, error) {
	uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return identity.Scope{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	scope, err := h.scopes.ResolveScope(c.Request().Context(), uid)
	if err != nil {
		return identity.Scope{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return scope, nil
}

func httpError(err error) error {
	var ve *identity.ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
			"field": ve.Field, "message": ve.Message,
		})
	case errors.Is(err, ErrNotFound), errors.Is(err, identity.ErrNotFound),
		errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType),
		errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- patients --

func (h *Handler) CreatePatient(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), scope, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	var filter ListFilter
	if v := c.QueryParam("category_id"); v != "" {
		cid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid category_id")
		}
		filter.CategoryID = &cid
	}
	filter.Unassigned = c.QueryParam("unassigned") == "true"

	items, total, err := h.svc.ListPatients(c.Request().Context(), scope, filter, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)

	// Organisers additionally get the patients nobody works yet, so the
	// unassigned backlog is visible without a second request.
	if scope.IsOrganiser() {
		unassigned, _, err := h.svc.ListPatients(c.Request().Context(), scope,
			ListFilter{Unassigned: true}, pg.Limit, 0)
		if err != nil {
			return httpError(err)
		}
		if unassigned == nil {
			unassigned = []*Patient{}
		}
		return c.JSON(http.StatusOK, struct {
			*pagination.Response
			Unassigned []*Patient `json:"unassigned"`
		}{resp, unassigned})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetPatient(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), scope, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), scope, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), scope, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type assignAgentRequest struct {
	AgentID uuid.UUID `json:"agent_id"`
}

func (h *Handler) AssignAgent(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req assignAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AssignAgent(c.Request().Context(), scope, id, req.AgentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type updateCategoryRequest struct {
	CategoryID *uuid.UUID `json:"category_id"`
}

func (h *Handler) UpdatePatientCategory(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatientCategory(c.Request().Context(), scope, id, req.CategoryID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Dashboard(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.Dashboard(c.Request().Context(), scope)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Export dumps every patient as JSON under the "qs" key.
func (h *Handler) Export(c echo.Context) error {
	if _, err := h.scope(c); err != nil {
		return err
	}
	items, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"qs": items})
}

// -- categories --

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateCategory(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cat, err := h.svc.CreateCategory(c.Request().Context(), scope, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *Handler) ListCategories(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListCategories(c.Request().Context(), scope)
	if err != nil {
		return httpError(err)
	}
	uncategorised, err := h.svc.UncategorisedCount(c.Request().Context(), scope)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Category{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"categories":          items,
		"uncategorised_count": uncategorised,
	})
}

func (h *Handler) GetCategory(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cat, err := h.svc.GetCategory(c.Request().Context(), scope, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *Handler) RenameCategory(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cat, err := h.svc.RenameCategory(c.Request().Context(), scope, id, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *Handler) DeleteCategory(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCategory(c.Request().Context(), scope, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- follow-ups --

type followUpRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) CreateFollowUp(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req followUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.CreateFollowUp(c.Request().Context(), scope, id, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) ListFollowUps(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListFollowUps(c.Request().Context(), scope, id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetFollowUp(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.GetFollowUp(c.Request().Context(), scope, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) UpdateFollowUp(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req followUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.UpdateFollowUp(c.Request().Context(), scope, id, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteFollowUp(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteFollowUp(c.Request().Context(), scope, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- attachments --

func (h *Handler) AddAttachment(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	meta, err := h.svc.AddAttachment(c.Request().Context(), scope, id,
		file.Filename, file.Header.Get("Content-Type"),
		auth.UserIDFromContext(c.Request().Context()), src)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, meta)
}

func (h *Handler) ListAttachments(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAttachments(c.Request().Context(), scope, id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*blobstore.BlobMetadata{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.OpenAttachment(c.Request().Context(), scope, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) DeleteAttachment(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAttachment(c.Request().Context(), scope, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
