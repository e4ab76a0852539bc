package review

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	reviewrepo "github.com/trialmesh/aster/internal/repositories/review"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/requestcontext"
)

// DecisionStore lets an adjudication read and overwrite the machine decision
// for the entry's run key
type DecisionStore interface {
	Upsert(ctx context.Context, dec models.ResolutionDecision) (*models.ResolutionDecision, error)
	GetByKey(ctx context.Context, runID, externalKey, normalizedSponsorText string) (*models.ResolutionDecision, error)
}

// Handler serves the review queue endpoints
type Handler struct {
	reviews   *reviewrepo.Repository
	decisions DecisionStore
	validate  *validator.Validate
	logger    ectologger.Logger
}

// NewHandler creates a review handler
func NewHandler(reviews *reviewrepo.Repository, decisions DecisionStore, validate *validator.Validate, logger ectologger.Logger) *Handler {
	return &Handler{
		reviews:   reviews,
		decisions: decisions,
		validate:  validate,
		logger:    logger,
	}
}

// Register registers review routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/:id/adjudicate", h.Adjudicate)
}

// List returns pending review entries, oldest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = parsed
	}

	resp, err := h.reviews.ListPending(ctx, c.QueryParam("run_id"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Adjudicate resolves or skips a pending entry. Resolving with a company id
// also writes a corrected decision for the originating run key, so the run's
// decision table reflects the human verdict.
func (h *Handler) Adjudicate(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	var req models.AdjudicateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == models.ReviewStatusResolved && req.CompanyID == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "company_id is required to resolve an entry")
	}

	actor := requestcontext.GetActor(ctx)
	if actor == "" {
		actor = "reviewer"
	}

	entry, err := h.reviews.Adjudicate(ctx, id, req.Status, actor)
	if err != nil {
		return err
	}

	if req.Status == models.ReviewStatusResolved && req.CompanyID != nil {
		// Keep the machine decision's feature snapshot on the corrected row
		// so the scoring evidence survives the human override.
		features := json.RawMessage(`{}`)
		if prior, getErr := h.decisions.GetByKey(ctx, entry.RunID, entry.ExternalKey, entry.NormalizedSponsorText); getErr == nil && len(prior.Features) > 0 {
			features = prior.Features
		}

		dec := models.ResolutionDecision{
			RunID:                 entry.RunID,
			ExternalKey:           entry.ExternalKey,
			SponsorText:           entry.SponsorText,
			NormalizedSponsorText: entry.NormalizedSponsorText,
			CompanyID:             req.CompanyID,
			MatchMode:             models.MatchModeAdjudicated,
			Probability:           1.0,
			Top2Margin:            1.0,
			Features:              features,
			Evidence:              "human adjudication",
			DecidedBy:             actor,
			DecidedAt:             time.Now().UTC(),
		}
		if _, err := h.decisions.Upsert(ctx, dec); err != nil {
			h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"review_id": id,
			}).Error("Failed to write adjudicated decision")
			return err
		}
	}

	return c.JSON(http.StatusOK, entry)
}
