package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/nfintake/server/internal/errors"
	"github.com/hrygo/nfintake/server/internal/observability"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type handlerFunc func(c echo.Context, rc *observability.RequestContext) error

// observe wraps a handler with a request context, structured logging and metrics.
// Errors returned by h are written as ErrorResponse.
func (s *APIV1Service) observe(operation string, h handlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		rc := observability.NewRequestContextWithID(slog.Default(), requestID, operation)
		ctx := observability.WithRequestContext(c.Request().Context(), rc)
		c.SetRequest(c.Request().WithContext(ctx))

		err := h(c, rc)
		duration := time.Since(rc.StartTime)
		s.Metrics.RecordRequest(operation, duration)
		if err == nil {
			rc.Info("request completed", slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
			return nil
		}

		appErr, ok := apperrors.As(err)
		if !ok {
			appErr = &apperrors.AppError{Code: apperrors.ErrCodeStorage, Message: "internal error", Cause: err}
		}
		s.Metrics.RecordFailure(operation, string(appErr.Stage))

		status := apperrors.HTTPStatus(appErr.Code)
		attrs := []slog.Attr{
			slog.String(observability.LogFieldErrorCode, string(appErr.Code)),
			slog.String(observability.LogFieldStage, string(appErr.Stage)),
			slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
		}
		if status >= http.StatusInternalServerError {
			rc.Error("request failed", err, attrs...)
		} else {
			rc.Warn("request rejected", append(attrs, slog.String("error", err.Error()))...)
		}

		return c.JSON(status, ErrorResponse{
			Error: appErr.Message,
			Stage: string(appErr.Stage),
		})
	}
}
