package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	apierrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/files"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/operations"
	"github.com/San-2310/hsbc-hack/internal/services"
)

// toAPIError maps engine errors onto HTTP errors. Errors it does not know
// are returned unchanged for the error handler to classify.
func toAPIError(err error, now time.Time) error {
	var (
		validation  *aggregation.ValidationError
		notFound    *aggregation.ColumnNotFoundError
		unsupported *aggregation.UnsupportedOperationError
		apiErr      *apierrors.APIError
		appErr      *apierrors.AppError
	)

	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr), errors.As(err, &appErr):
		return err

	case errors.Is(err, services.ErrDatasetNotFound):
		return apierrors.NewWithDetails(http.StatusNotFound, "DATASET_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, services.ErrRuleNotFound):
		return apierrors.NewWithDetails(http.StatusNotFound, "RULE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, operations.ErrJobNotFound):
		return apierrors.NewWithDetails(http.StatusNotFound, "JOB_NOT_FOUND", err.Error(), nil)

	case errors.As(err, &validation):
		return apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_AGGREGATION", validation.Error(), aggregation.Failure(err, now))
	case errors.As(err, &notFound):
		return apierrors.UnprocessableWithError("COLUMN_NOT_FOUND", err, aggregation.Failure(err, now))
	case errors.As(err, &unsupported):
		return apierrors.NewWithDetails(http.StatusBadRequest, "UNSUPPORTED_OPERATION", err.Error(), aggregation.Failure(err, now))
	case errors.Is(err, aggregation.ErrTooManyBuckets):
		return apierrors.UnprocessableWithError("TOO_MANY_PERIODS", err, aggregation.Failure(err, now))

	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, files.ErrInvalidName):
		return apierrors.InvalidRequestWithError(err)
	case services.IsRuleInputError(err):
		return apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_RULE", err.Error(), nil)

	case errors.Is(err, ingestion.ErrUnsupportedFormat), errors.Is(err, exporter.ErrUnsupportedFormat):
		return apierrors.NewWithDetails(http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", err.Error(), nil)
	case errors.Is(err, ingestion.ErrFileTooLarge), errors.Is(err, files.ErrTooLarge):
		return apierrors.ErrPayloadTooLarge
	case errors.Is(err, ingestion.ErrNoColumns), errors.Is(err, ingestion.ErrNoTable), errors.Is(err, services.ErrEmptyDataset):
		return apierrors.UnprocessableWithError("EMPTY_INPUT", err, nil)

	case errors.Is(err, operations.ErrNotCancellable):
		return apierrors.NewWithDetails(http.StatusConflict, "JOB_NOT_CANCELLABLE", err.Error(), nil)
	case errors.Is(err, ingestion.ErrSheetsUnavailable),
		errors.Is(err, services.ErrUploadsDisabled),
		errors.Is(err, services.ErrJobsDisabled),
		errors.Is(err, services.ErrServiceUnavailable),
		errors.Is(err, operations.ErrQueueFull),
		errors.Is(err, operations.ErrQueueStopped):
		return apierrors.NewWithDetails(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err.Error(), nil)
	}
	return err
}

// handleError maps err and writes the problem response
func (h *baseHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.errorHandler.HandleError(w, r, toAPIError(err, h.now()))
}
