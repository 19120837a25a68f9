package handlers

import (
	"net/http"

	"github.com/almazom/koodo-llm/services"
	"github.com/almazom/koodo-llm/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	errType := services.GetErrorType(err)

	var status int
	message := err.Error()
	switch errType {
	case services.ErrorTypeNotFound:
		status = http.StatusNotFound
	case services.ErrorTypeValidation:
		status = http.StatusBadRequest
	case services.ErrorTypeUnauthorized:
		status = http.StatusUnauthorized
	case services.ErrorTypeConflict:
		status = http.StatusConflict
	case services.ErrorTypePrecondition:
		status = http.StatusPreconditionFailed
	case services.ErrorTypeExternal:
		// Upstream failures are the client's business: keep the message
		status = http.StatusBadGateway
		logger.Warn("provider error", zap.Error(err), zap.Any("details", details))
	default:
		// Log internal errors but return generic message
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(errType)))
		status = http.StatusInternalServerError
		message = "An internal error occurred"
		details = nil
	}

	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err), zap.Int("status", status))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
