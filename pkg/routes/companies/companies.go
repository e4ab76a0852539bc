package companies

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	aliasrepo "github.com/trialmesh/aster/internal/repositories/alias"
	companyrepo "github.com/trialmesh/aster/internal/repositories/company"
	"github.com/trialmesh/aster/pkg/models"
)

// Handler serves reference-data management for companies and their aliases
type Handler struct {
	companies *companyrepo.Repository
	aliases   *aliasrepo.Repository
	validate  *validator.Validate
}

// NewHandler creates a companies handler
func NewHandler(companies *companyrepo.Repository, aliases *aliasrepo.Repository, validate *validator.Validate) *Handler {
	return &Handler{
		companies: companies,
		aliases:   aliases,
		validate:  validate,
	}
}

// Register registers company routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.GET("/:id/aliases", h.ListAliases)
	g.POST("/:id/aliases", h.CreateAlias)
}

// List returns a page of companies
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	resp, err := h.companies.List(c.Request().Context(), page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Create adds a company; the normalized name is computed server-side
func (h *Handler) Create(c echo.Context) error {
	var req models.CreateCompanyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.companies.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

// Get returns one company
func (h *Handler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	company, err := h.companies.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, company)
}

// Update applies partial updates; a name change recomputes the normalized name
func (h *Handler) Update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	var req models.UpdateCompanyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, err := h.companies.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// ListAliases returns every alias of a company
func (h *Handler) ListAliases(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	aliases, err := h.aliases.ListByCompany(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, aliases)
}

// CreateAlias attaches an alias to a company. Re-posting an existing alias is
// a no-op reported as 200 rather than a conflict.
func (h *Handler) CreateAlias(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	var req models.CreateAliasRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The company must exist; a missing one surfaces as 404 here rather
	// than a foreign-key error from the insert.
	if _, err := h.companies.GetByID(c.Request().Context(), id); err != nil {
		return err
	}

	source := req.Source
	if source == "" {
		source = "manual"
	}

	inserted, err := h.aliases.InsertIfAbsent(c.Request().Context(), id, req.Alias, req.AliasType, source)
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	return c.JSON(status, map[string]any{"inserted": inserted})
}
