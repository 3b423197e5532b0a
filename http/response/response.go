package response

import (
	"encoding/json"
	"net/http"

	"travel-backoffice/errors"
	"travel-backoffice/logger"
)

// StandardResponse represents the standard API response structure
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PaymentError is the error body of the payment endpoints, which answer with a success flag.
type PaymentError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SuccessResponse sends a success response with given status code, message, and data
func SuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	response := StandardResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}
	SendJSON(w, statusCode, response)
}

// ErrorResponse sends an error response with given status code and error message
func ErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	response := StandardResponse{
		Status: "error",
		Error:  errorMsg,
	}
	SendJSON(w, statusCode, response)
}

// Error maps err to its status code and sends it as an ErrorResponse.
func Error(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	ErrorResponse(w, status, msg)
}

// PaymentFailure maps err to its status code and sends {success:false, error}.
func PaymentFailure(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	SendJSON(w, status, PaymentError{Success: false, Error: msg})
}

// classify hides unclassified errors behind a generic message; they may carry driver details.
func classify(err error) (int, string) {
	status := errors.HTTPStatus(err)
	if errors.KindOf(err) == errors.Other {
		logger.Error("Unhandled error: %v", err)
		return status, "internal server error"
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	return status, errors.Message(err)
}

// SendJSON encodes and sends a JSON response
func SendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
