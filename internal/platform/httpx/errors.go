package httpx

import "net/http"

// Stable error codes exposed on the wire.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeProductNotFound       = "PRODUCT_NOT_FOUND"
	CodeProductInactive       = "PRODUCT_INACTIVE"
	CodeInsufficientOnHand    = "INSUFFICIENT_ON_HAND"
	CodeInsufficientReserved  = "INSUFFICIENT_RESERVED"
	CodeInsufficientAvailable = "INSUFFICIENT_AVAILABLE"
	CodeDuplicateRequest      = "DUPLICATE_REQUEST_ID"
	CodeConflict              = "CONFLICT"
	CodeInternal              = "INTERNAL_ERROR"
)

// BadRequest sends a 400 VALIDATION_ERROR response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, CodeValidation, message)
}

// NotFound sends a 404 response with the given code.
func NotFound(w http.ResponseWriter, code, message string) {
	Error(w, http.StatusNotFound, code, message)
}

// Conflict sends a 409 response with the given code.
func Conflict(w http.ResponseWriter, code, message string) {
	Error(w, http.StatusConflict, code, message)
}

// Internal sends a 500 response without leaking details.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}
