// Package requestcontext carries request-scoped identifiers through
// context.Context.
package requestcontext

import "context"

type contextKey string

var (
	requestIDKey = contextKey("x-request-id")
	actorKey     = contextKey("x-actor")
	runIDKey     = contextKey("x-run-id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(requestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetActor records who is acting (API caller or reviewer); stamped onto
// decisions as decided_by.
func SetActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func GetActor(ctx context.Context) string {
	value, ok := ctx.Value(actorKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func GetRunID(ctx context.Context) string {
	value, ok := ctx.Value(runIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
