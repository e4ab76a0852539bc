package rules

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	rulerepo "github.com/trialmesh/aster/internal/repositories/rule"
	"github.com/trialmesh/aster/pkg/models"
)

// Handler serves deterministic-rule and ignore-pattern administration
type Handler struct {
	rules    *rulerepo.Repository
	validate *validator.Validate
}

// NewHandler creates a rules handler
func NewHandler(rules *rulerepo.Repository, validate *validator.Validate) *Handler {
	return &Handler{
		rules:    rules,
		validate: validate,
	}
}

// Register registers rule routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.GET("/ignore-patterns", h.ListIgnorePatterns)
	g.POST("/ignore-patterns", h.CreateIgnorePattern)
}

// List returns every rule
func (h *Handler) List(c echo.Context) error {
	rules, err := h.rules.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rules)
}

// Create adds a rule. The pattern is compile-checked before it is stored.
func (h *Handler) Create(c echo.Context) error {
	var req models.CreateRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.rules.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

// Update applies partial updates to a rule
func (h *Handler) Update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	var req models.UpdateRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, err := h.rules.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete removes a rule
func (h *Handler) Delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	if err := h.rules.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListIgnorePatterns returns the alias-promotion ignore list
func (h *Handler) ListIgnorePatterns(c echo.Context) error {
	patterns, err := h.rules.ListIgnorePatterns(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patterns)
}

// CreateIgnorePattern adds an ignore pattern
func (h *Handler) CreateIgnorePattern(c echo.Context) error {
	var req models.CreateIgnorePatternRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.rules.CreateIgnorePattern(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}
