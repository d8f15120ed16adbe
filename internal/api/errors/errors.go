// Package errors defines the standard API error envelope shared by the
// registry HTTP surface.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Code is a stable, machine-readable API error code.
type Code string

const (
	CodeValidationFailed         Code = "VALIDATION_FAILED"
	CodeAuthenticationRequired   Code = "AUTHENTICATION_REQUIRED"
	CodeInsufficientPermissions  Code = "INSUFFICIENT_PERMISSIONS"
	CodeResourceNotFound         Code = "RESOURCE_NOT_FOUND"
	CodeResourceConflict         Code = "RESOURCE_CONFLICT"
	CodeRateLimitExceeded        Code = "RATE_LIMIT_EXCEEDED"
	CodeInternalServerError      Code = "INTERNAL_SERVER_ERROR"
	CodePluginNotFound           Code = "PLUGIN_NOT_FOUND"
	CodePluginValidationFailed   Code = "PLUGIN_VALIDATION_FAILED"
	CodePluginUploadFailed       Code = "PLUGIN_UPLOAD_FAILED"
	CodePluginSecurityViolation  Code = "PLUGIN_SECURITY_VIOLATION"
	CodeInsufficientTrustLevel   Code = "INSUFFICIENT_TRUST_LEVEL"
	CodeCapabilityDenied         Code = "CAPABILITY_DENIED"
	CodePluginConflict           Code = "PLUGIN_CONFLICT"
	CodeOperationTimeout         Code = "OPERATION_TIMEOUT"
	CodeStorageOperationFailed   Code = "STORAGE_OPERATION_FAILED"
	CodeDatabaseOperationFailed  Code = "DATABASE_OPERATION_FAILED"
	CodeConfigurationError       Code = "CONFIGURATION_ERROR"
)

// APIError is the structured error carried in every non-2xx response.
type APIError struct {
	Code          Code        `json:"code"`
	Message       string      `json:"message"`
	Details       interface{} `json:"details,omitempty"`
	Timestamp     string      `json:"timestamp"`
	Path          string      `json:"path,omitempty"`
	Method        string      `json:"method,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Context       interface{} `json:"context,omitempty"`
	Stack         string      `json:"stack,omitempty"`
}

// Response wraps an APIError in the `{success:false, error:{...}}` envelope.
type Response struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

// New creates a new APIError with the given code and message.
func New(code Code, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (e *APIError) WithDetails(details interface{}) *APIError {
	e.Details = details
	return e
}

func (e *APIError) WithPath(path, method string) *APIError {
	e.Path = path
	e.Method = method
	return e
}

func (e *APIError) WithCorrelationID(id string) *APIError {
	e.CorrelationID = id
	return e
}

func (e *APIError) WithContext(ctx interface{}) *APIError {
	e.Context = ctx
	return e
}

// StatusCode maps the error code to an HTTP status.
func (e *APIError) StatusCode() int {
	switch e.Code {
	case CodeValidationFailed, CodePluginValidationFailed, CodePluginUploadFailed:
		return http.StatusBadRequest
	case CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case CodeInsufficientPermissions, CodeInsufficientTrustLevel, CodeCapabilityDenied, CodePluginSecurityViolation:
		return http.StatusForbidden
	case CodeResourceNotFound, CodePluginNotFound:
		return http.StatusNotFound
	case CodeResourceConflict, CodePluginConflict:
		return http.StatusConflict
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeOperationTimeout:
		return http.StatusRequestTimeout
	case CodeStorageOperationFailed, CodeDatabaseOperationFailed, CodeInternalServerError:
		return http.StatusInternalServerError
	case CodeConfigurationError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WriteError writes the APIError as the standard JSON envelope.
func WriteError(w http.ResponseWriter, r *http.Request, correlationID string, err *APIError) {
	if r != nil {
		err = err.WithPath(r.URL.Path, r.Method)
	}
	if correlationID != "" {
		err = err.WithCorrelationID(correlationID)
	}
	response := Response{Success: false, Error: *err}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(response)
}

// Helper constructors mirroring the API's error taxonomy.

func ValidationFailed(message string) *APIError {
	return New(CodeValidationFailed, message)
}

func PluginValidationFailed(message string) *APIError {
	return New(CodePluginValidationFailed, message)
}

func PluginUploadFailed(message string) *APIError {
	return New(CodePluginUploadFailed, message)
}

func PluginSecurityViolation(message string) *APIError {
	return New(CodePluginSecurityViolation, message)
}

func PluginNotFound(name string) *APIError {
	return New(CodePluginNotFound, fmt.Sprintf("plugin %q not found", name))
}

func PluginConflict(name, version string) *APIError {
	return New(CodePluginConflict, fmt.Sprintf("plugin %q version %q already exists", name, version)).
		WithDetails(map[string]string{"name": name, "version": version})
}

func InsufficientTrustLevel(required string) *APIError {
	return New(CodeInsufficientTrustLevel, fmt.Sprintf("requires trust level %s or higher", required)).
		WithDetails(map[string]string{"requiredTrustLevel": required})
}

func CapabilityDenied(capability string) *APIError {
	return New(CodeCapabilityDenied, fmt.Sprintf("capability %q denied", capability)).
		WithDetails(map[string]string{"capability": capability})
}

func RateLimitExceeded() *APIError {
	return New(CodeRateLimitExceeded, "rate limit exceeded, please retry later")
}

func OperationTimeout(op string) *APIError {
	return New(CodeOperationTimeout, fmt.Sprintf("operation %q timed out", op))
}

func StorageOperationFailed(message string) *APIError {
	return New(CodeStorageOperationFailed, message)
}

func DatabaseOperationFailed(message string) *APIError {
	return New(CodeDatabaseOperationFailed, message)
}

func ConfigurationError(message string) *APIError {
	return New(CodeConfigurationError, message)
}

func InternalServerError(message string) *APIError {
	return New(CodeInternalServerError, message)
}

func ResourceNotFound(resource string) *APIError {
	return New(CodeResourceNotFound, fmt.Sprintf("%s not found", resource))
}

func ResourceConflict(message string) *APIError {
	return New(CodeResourceConflict, message)
}

func AuthenticationRequired() *APIError {
	return New(CodeAuthenticationRequired, "authentication required")
}

func InsufficientPermissions(message string) *APIError {
	return New(CodeInsufficientPermissions, message)
}
