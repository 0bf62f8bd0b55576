package web

// errors.go turns service errors into responses.
//
// Classified domain errors (core.Error) map to a status code and their
// message is shown as is. Everything else is logged with the request id and
// answered with a generic message from core.MapError, whose support code is
// returned as "ref" so users can quote it.

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablestore/internal/core"
	"github.com/JonMunkholm/tablestore/internal/logging"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

// ErrorResponse is the JSON envelope {"error": {...}}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

var kindStatus = map[core.ErrorKind]int{
	core.KindNotFound:     http.StatusNotFound,
	core.KindForbidden:    http.StatusForbidden,
	core.KindValidation:   http.StatusBadRequest,
	core.KindConflict:     http.StatusConflict,
	core.KindUnauthorized: http.StatusUnauthorized,
}

// classify picks the status and body for err.
func classify(err error) (int, ErrorBody) {
	var de *core.Error
	if errors.As(err, &de) {
		if status, ok := kindStatus[de.Kind]; ok {
			return status, ErrorBody{Code: string(de.Kind), Message: de.Message}
		}
	}

	msg := core.MapError(err)
	body := ErrorBody{Code: string(core.KindInternal), Message: msg.Message, Action: msg.Action, Ref: msg.Code}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrTooManyUploads):
		body.Code = "SERVICE_UNAVAILABLE"
		return http.StatusServiceUnavailable, body
	case errors.As(err, &tooLarge):
		body.Code = "PAYLOAD_TOO_LARGE"
		return http.StatusRequestEntityTooLarge, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	}
	return http.StatusInternalServerError, body
}

// respondError logs err and writes the matching response. HTMX requests get
// an HTML fragment instead of JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)

	logger := logging.FromContext(r.Context()).With(
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", body.Code,
		"error", err.Error(),
	)
	switch {
	case status >= http.StatusInternalServerError && core.IsUserFacing(err):
		logger.Warn("request failed", "ref", body.Ref)
	case status >= http.StatusInternalServerError:
		logger.Error("request error", "ref", body.Ref)
	default:
		logger.Debug("request rejected")
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := errorAlert(body).Render(r.Context(), w); err != nil {
			logger.Warn("render error fragment", "render_error", err)
		}
		return
	}
	writeJSONStatus(w, status, ErrorResponse{Error: body})
}

// errorAlert renders a dismissible alert for HTMX swaps.
func errorAlert(body ErrorBody) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="alert alert-error" role="alert"><p>`+
			templ.EscapeString(body.Message)+`</p>`)
		if err != nil {
			return err
		}
		if body.Action != "" {
			if _, err := io.WriteString(w, `<p class="alert-action">`+templ.EscapeString(body.Action)+`</p>`); err != nil {
				return err
			}
		}
		code := body.Code
		if body.Ref != "" {
			code = body.Ref
		}
		_, err = io.WriteString(w, `<small>`+templ.EscapeString(code)+`</small></div>`)
		return err
	})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v. Encoding errors are only logged since the
// header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
