package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/clean-dependency-project/dlserver/internal/query"
	"github.com/clean-dependency-project/dlserver/internal/sitegen"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError reports err as JSON with the status its kind maps to.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := query.StatusCode(err)
	s.logFailure(code, err)
	s.writeJSON(w, code, ErrorResponse{Error: publicMessage(code, err), Code: code})
}

// writeErrorPage reports err as an HTML page.
func (s *Server) writeErrorPage(w http.ResponseWriter, err error) {
	code := query.StatusCode(err)
	s.logFailure(code, err)

	var buf bytes.Buffer
	if renderErr := sitegen.RenderError(&buf, code, publicMessage(code, err)); renderErr != nil {
		s.logger.Error("failed to render error page", "error", renderErr)
		http.Error(w, http.StatusText(code), code)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) logFailure(code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "error", err)
		return
	}
	s.logger.Debug("request rejected", "code", code, "error", err)
}

// publicMessage hides internal error detail from 5xx responses.
func publicMessage(code int, err error) string {
	if code >= http.StatusInternalServerError {
		return http.StatusText(code)
	}
	return err.Error()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
