package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/http/dto"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/logging"
)

// MapFailure maps a gateway failure to a status and body.
//
// Application failures keep HTTP 200 and carry the business code, exactly
// like the backend envelope. Transport failures become 502, except that an
// upstream 4xx status is passed through.
func MapFailure(err error) (int, *dto.Failure) {
	msg := fmt.Sprint(domain.RejectionValue(err))

	var appErr *domain.ApplicationError
	if errors.As(err, &appErr) {
		return http.StatusOK, dto.NewFailure(appErr.Code, msg)
	}

	status := http.StatusBadGateway
	if resp := clients.ResponseFromError(err); resp != nil &&
		resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		status = resp.StatusCode
	}

	return status, dto.NewFailure(status, msg)
}

// RespondWithFailure writes the mapped failure with the current trace ID.
func RespondWithFailure(c *gin.Context, err error) {
	status, body := MapFailure(err)
	body.WithTraceID(traceID(c))

	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "gateway failure",
			slog.Any("error", err),
			slog.String("trace_id", body.TraceID),
		)
	}

	c.JSON(status, body)
}

func traceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return ""
}
