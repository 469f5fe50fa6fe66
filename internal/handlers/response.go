// path: internal/handlers/response.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/xipebhui/autopublish/internal/application/common"
)

// validate is shared by every handler for request DTO validation.
var validate = validator.New()

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retry_able,omitempty"`
}

// Envelope is the uniform response shape.
type Envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorBody  `json:"error,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondSuccess sends a success envelope with data
func respondSuccess(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, Envelope{OK: true, Data: data})
}

// respondCreated sends a created envelope
func respondCreated(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusCreated, Envelope{OK: true, Data: data})
}

// respondError sends an explicit error envelope
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, Envelope{OK: false, Error: &ErrorBody{Code: code, Message: message}})
}

// respondAppError maps a classified error onto HTTP per §7: 400 validation,
// 404 missing, 409 conflict, 500 transient/permanent.
func respondAppError(w http.ResponseWriter, err error) {
	appErr, ok := common.AsAppError(err)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, Envelope{OK: false, Error: &ErrorBody{
			Code: "internal", Message: err.Error(),
		}})
		return
	}
	status := http.StatusInternalServerError
	switch appErr.Kind {
	case common.KindBadRequest:
		status = http.StatusBadRequest
	case common.KindNotFound:
		status = http.StatusNotFound
	case common.KindConflict:
		status = http.StatusConflict
	}
	respondJSON(w, status, Envelope{OK: false, Error: &ErrorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Retryable: appErr.Retryable,
	}})
}

// decodeAndValidate decodes the body into dst and runs validator tags.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.BadRequest("invalid_body", "request body is not valid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return common.BadRequest("invalid_body", err.Error())
	}
	return nil
}
