package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/trialmesh/aster/pkg/requestcontext"
)

const (
	// HeaderActor identifies the calling user or system for audit stamps
	HeaderActor = "X-Actor"
)

// Context populates request-scoped identifiers onto the request context.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = requestcontext.SetRequestID(ctx, requestID)
			ctx = requestcontext.SetActor(ctx, req.Header.Get(HeaderActor))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
