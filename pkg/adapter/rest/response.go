package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/errs"
)

// errorBody is the payload of an error envelope.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeOK writes {"status":"ok", ...fields} with the given status code.
func writeOK(w http.ResponseWriter, status int, fields map[string]any) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["status"] = "ok"
	writeJSON(w, status, body)
}

// writeError writes {"status":"error","error":{"code":status,"message":msg}}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"status": "error",
		"error":  errorBody{Code: status, Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("HTTP: failed to encode response: %v", err)
	}
}

// statusFor maps an error category to an HTTP status code.
//
//	ErrValidation            400
//	ErrNotFound              404
//	ErrUnsupportedMediaType  415
//	ErrConversionFailed      422
//	ErrStorage / other       500
func statusFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.ErrValidation:
		return http.StatusBadRequest
	case errs.ErrNotFound:
		return http.StatusNotFound
	case errs.ErrUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case errs.ErrConversionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure maps err to a status and writes an error envelope. Internal
// errors are logged and reported with a generic message.
func writeFailure(w http.ResponseWriter, log *logger.Fields, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed: %v", err)
		writeError(w, status, "internal server error")
		return
	}
	log.Debug("request rejected: %v", err)
	writeError(w, status, messageOf(err))
}

// messageOf returns the caller-facing message of a categorised error,
// without the operation prefix.
func messageOf(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ce, ok := e.(*errs.Error); ok && ce.Message != "" {
			return ce.Message
		}
	}
	return err.Error()
}
