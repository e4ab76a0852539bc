package runs

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	decisionrepo "github.com/trialmesh/aster/internal/repositories/decision"
)

// Handler serves run-scoped decision listings
type Handler struct {
	decisions *decisionrepo.Repository
}

// NewHandler creates a runs handler
func NewHandler(decisions *decisionrepo.Repository) *Handler {
	return &Handler{decisions: decisions}
}

// Register registers run routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id/decisions", h.ListDecisions)
}

// ListDecisions returns every decision recorded for a run, in insertion order
func (h *Handler) ListDecisions(c echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	decisions, err := h.decisions.ListByRun(c.Request().Context(), runID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, decisions)
}
