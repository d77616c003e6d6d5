package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cmpc-libros/apiserver/internal/services"
	"github.com/cmpc-libros/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// maxAuditBodyBytes bounds how much of a JSON body is buffered for the
// audit trail.
const maxAuditBodyBytes = 64 << 10

const anonymousUsername = "anonymous"

// redactedParams lists parameter names whose values never reach the audit
// trail.
var redactedParams = map[string]bool{"password": true}

// Auditor builds route-scoped middleware that records one audit entry per
// request/response pair. Recording happens after the handler has written
// its response and can never change the outcome of the request.
type Auditor struct {
	audit *services.AuditService
}

func NewAuditor(audit *services.AuditService) *Auditor {
	return &Auditor{audit: audit}
}

// Action wraps a handler and records its outcome under the given action
// name (component.operation, e.g. "books.create").
func (a *Auditor) Action(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyParams := bufferJSONBody(r)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			user, ok := UserFromContext(r.Context())
			username := user.Username
			if !ok {
				username = anonymousUsername
			}

			a.audit.Record(r.Context(), types.AuditEntry{
				Route:      routePattern(r),
				Method:     r.Method,
				StatusCode: rec.status,
				Username:   username,
				IPAddress:  clientIP(r),
				UserAgent:  r.UserAgent(),
				Action:     action,
				Params:     mergeParams(r, bodyParams),
				UserID:     user.ID,
			})
		})
	}
}

// bufferJSONBody reads a JSON request body for auditing and restores it so
// the handler can read it again. Non-JSON bodies are left untouched.
func bufferJSONBody(r *http.Request) map[string]any {
	if r.Body == nil || !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBodyBytes))
	if err != nil {
		return nil
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))

	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil
	}
	return params
}

// mergeParams combines body, form, path, and query parameters, redacting
// sensitive values.
func mergeParams(r *http.Request, bodyParams map[string]any) map[string]any {
	params := map[string]any{}

	for key, value := range bodyParams {
		params[key] = value
	}
	if r.MultipartForm != nil {
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
	}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key != "*" {
				params[key] = rctx.URLParams.Values[i]
			}
		}
	}

	for key := range params {
		if redactedParams[strings.ToLower(key)] {
			params[key] = "[REDACTED]"
		}
	}
	return params
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
