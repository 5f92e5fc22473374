package http

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	apierrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/middleware"
	api "github.com/San-2310/hsbc-hack/pkg/contracts/api/v1"
)

// maxRuleBody caps raw JSON bodies read outside render.Bind
const maxRuleBody = 1 << 20

// baseHandler carries what every handler needs
type baseHandler struct {
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validator    *middleware.ValidationMiddleware
	now          func() time.Time
}

func newBaseHandler(name string, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) baseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	return baseHandler{
		logger:       logger.With(slog.String("handler", name)),
		errorHandler: errorHandler,
		validator:    middleware.NewValidationMiddleware(logger, errorHandler, 0),
		now:          time.Now,
	}
}

// respond writes data in the success envelope
func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, api.Success(data))
}

// bind decodes and validates a JSON body. On failure the problem response
// is already written.
func (h *baseHandler) bind(w http.ResponseWriter, r *http.Request, v render.Binder) bool {
	if err := render.Bind(r, v); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return false
	}
	if err := h.validator.ValidateStruct(v); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// readBody returns the raw request body. Empty bodies are rejected.
func (h *baseHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRuleBody+1))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	if len(body) > maxRuleBody {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(http.StatusRequestEntityTooLarge,
			"PAYLOAD_TOO_LARGE", fmt.Sprintf("request body exceeds %d bytes", maxRuleBody), nil))
		return nil, false
	}
	if len(body) == 0 {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "request body is required"))
		return nil, false
	}
	return body, true
}
