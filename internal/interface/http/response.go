package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/edupredict/risk-monitor/internal/application/report"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/internal/infrastructure/storage"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// Stable error codes returned in the envelope.
const (
	CodeInvalidMetric   = "INVALID_METRIC"
	CodeUnknownStudent  = "UNKNOWN_STUDENT"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeInvalidTier     = "INVALID_TIER"
	CodeStateTransition = "STATE_TRANSITION"
	CodeReportInFlight  = "REPORT_IN_FLIGHT"
	CodeReportFailed    = "REPORT_FAILED"
	CodeReportCancelled = "REPORT_CANCELLED"
	CodeConflict        = "CONFLICT"
	CodeTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeNotReady        = "REGISTRY_NOT_READY"
	CodeFeatureDisabled = "FEATURE_DISABLED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
)

// JSONResponse is the envelope of every JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError is the error part of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp       time.Time `json:"timestamp"`
	TotalCount      int       `json:"total_count,omitempty"`
	SnapshotVersion uint64    `json:"snapshot_version,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSONWithMeta(w, r, status, data, nil)
}

func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()

	writeEnvelope(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeEnvelope(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message, Details: details},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to a status and code. Unexpected errors are logged and
// hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := classifyError(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.Err(err),
		)
	}
	writeErrorCode(w, r, status, code, message, details)
}

func classifyError(err error) (status int, code, message string, details any) {
	var failure *report.Failure
	if errors.As(err, &failure) {
		return http.StatusBadGateway, CodeReportFailed, failure.Error(), nil
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || errors.Is(err, storage.ErrDocumentTooLarge) {
		return http.StatusRequestEntityTooLarge, CodeTooLarge, "Request body or document exceeds the upload size limit", nil
	}

	message = domainMessage(err)

	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		details = verr.Fields
	}

	switch {
	case errors.Is(err, shared.ErrInvalidMetric):
		return http.StatusBadRequest, CodeInvalidMetric, message, details
	case errors.Is(err, shared.ErrInvalidTier):
		return http.StatusBadRequest, CodeInvalidTier, message, details
	case errors.Is(err, shared.ErrUnknownStudent):
		return http.StatusNotFound, CodeUnknownStudent, message, details
	case errors.Is(err, shared.ErrReportInFlight):
		return http.StatusConflict, CodeReportInFlight, message, details
	case errors.Is(err, shared.ErrReportCancelled):
		return http.StatusConflict, CodeReportCancelled, message, details
	case errors.Is(err, shared.ErrReportGenerationFailed):
		return http.StatusBadGateway, CodeReportFailed, report.GenericFailureMessage, nil
	case errors.Is(err, shared.ErrRegistryEmpty):
		return http.StatusServiceUnavailable, CodeNotReady, message, nil
	case errors.Is(err, shared.ErrStateTransition):
		return http.StatusConflict, CodeStateTransition, message, details
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, CodeConflict, message, details
	case shared.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound, message, details
	case shared.IsValidation(err):
		return http.StatusBadRequest, CodeInvalidInput, message, details
	default:
		return http.StatusInternalServerError, CodeInternal, "An unexpected error occurred", nil
	}
}

func domainMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

func invalidInput(message string) error {
	return shared.NewDomainError("http", "Decode", shared.ErrInvalidInput, message)
}

// decodeJSON decodes a JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return invalidInput("invalid JSON body: " + err.Error())
	}
	return nil
}
