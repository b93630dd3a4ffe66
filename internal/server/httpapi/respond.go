package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/loandocs/internal/errs"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success   bool      `json:"success"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var statusByCode = map[string]int{
	errs.CodeNotFound:        http.StatusNotFound,
	errs.CodeForbidden:       http.StatusForbidden,
	errs.CodeInvalidInput:    http.StatusBadRequest,
	errs.CodePayloadTooLarge: http.StatusRequestEntityTooLarge,
	errs.CodeInvalidState:    http.StatusConflict,
	errs.CodeExpired:         http.StatusGone,
	errs.CodeConflict:        http.StatusConflict,
	errs.CodeUnauthorized:    http.StatusUnauthorized,
	errs.CodeRateLimited:     http.StatusTooManyRequests,
	errs.CodeInternal:        http.StatusInternalServerError,
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	if st, ok := statusByCode[errs.Code(err)]; ok {
		return st
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v envelope) {
	v.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) ok(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// fail answers with the error's code. Internal errors are logged and their
// text is not sent to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.Code(err)
	msg := err.Error()
	if code == errs.CodeInternal {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, StatusOf(err), envelope{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("request body: %w", errs.ErrPayloadTooLarge)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body: %w", errs.ErrInvalidInput)
		}
		return fmt.Errorf("malformed json: %w", errs.ErrInvalidInput)
	}
	return nil
}

func invalidf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, errs.ErrInvalidInput)...)
}
