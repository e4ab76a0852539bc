package resolve

import (
	"bufio"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trialmesh/aster/pkg/kafka"
	"github.com/trialmesh/aster/pkg/requestcontext"
	"github.com/trialmesh/aster/pkg/resolution"
)

// Handler serves the resolution endpoints
type Handler struct {
	service  *resolution.Service
	producer *kafka.Producer
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewHandler creates a resolve handler. producer may be nil.
func NewHandler(service *resolution.Service, producer *kafka.Producer, validate *validator.Validate, logger ectologger.Logger) *Handler {
	return &Handler{
		service:  service,
		producer: producer,
		validate: validate,
		logger:   logger,
	}
}

// Register registers resolution routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Resolve)
	g.POST("/batch", h.ResolveBatch)
}

// Resolve resolves a single sponsor text synchronously
func (h *Handler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	var req resolution.ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx = requestcontext.SetRunID(ctx, req.RunID)

	dec, err := h.service.Resolve(ctx, req)
	if err != nil {
		return err
	}

	h.publish(c, &kafka.DecisionEvent{
		RunID:       req.RunID,
		ExternalKey: req.ExternalKey,
		SponsorText: req.SponsorText,
		Decision:    dec,
	})

	return c.JSON(http.StatusOK, dec)
}

// ResolveBatch resolves an NDJSON stream of records, streaming one NDJSON
// result per record followed by a summary line. Per-record failures surface
// as error results, never as an aborted response.
func (h *Handler) ResolveBatch(c echo.Context) error {
	ctx := c.Request().Context()

	runID := c.QueryParam("run_id")
	if runID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "run_id query parameter is required")
	}
	ctx = requestcontext.SetRunID(ctx, runID)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(resp)

	records := make(chan resolution.BatchRecord)
	go func() {
		defer close(records)
		scanner := bufio.NewScanner(c.Request().Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			var record resolution.BatchRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"line": line}).Warn("Skipping malformed batch line")
				continue
			}
			select {
			case <-ctx.Done():
				return
			case records <- record:
			}
		}
		if err := scanner.Err(); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("Batch input stream ended early")
		}
	}()

	// The service serializes emit calls, so the slice needs no lock.
	var events []*kafka.DecisionEvent
	summary, err := h.service.ResolveBatch(ctx, runID, records, func(result resolution.BatchResult) {
		if encodeErr := encoder.Encode(result); encodeErr != nil {
			h.logger.WithContext(ctx).WithError(encodeErr).Warn("Failed to write batch result")
			return
		}
		resp.Flush()
		if result.Decision != nil {
			events = append(events, &kafka.DecisionEvent{
				RunID:       runID,
				ExternalKey: result.ExternalKey,
				Decision:    result.Decision,
			})
		}
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Batch resolution interrupted")
	}

	if h.producer != nil && len(events) > 0 {
		if pubErr := h.producer.PublishDecisions(ctx, events); pubErr != nil {
			h.logger.WithContext(ctx).WithError(pubErr).Warn("Failed to publish batch decision events")
		}
	}

	if encodeErr := encoder.Encode(map[string]any{"summary": summary}); encodeErr == nil {
		resp.Flush()
	}
	return nil
}

func (h *Handler) publish(c echo.Context, event *kafka.DecisionEvent) {
	if h.producer == nil {
		return
	}
	ctx := c.Request().Context()
	if err := h.producer.PublishDecision(ctx, event); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to publish decision event")
	}
}
