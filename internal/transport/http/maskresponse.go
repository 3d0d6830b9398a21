package httptransport

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"custodia/internal/masking"
	"custodia/internal/platform/middleware"
)

// MaskResponse pipes successful JSON responses through the masking engine for
// one resource type. Object and array-of-object bodies are masked per the
// caller's (tenant, role) scope; anything else passes through untouched.
func MaskResponse(engine *masking.Engine, resourceType string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessor, ok := middleware.GetAccessor(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			capture := &responseCapture{header: w.Header().Clone(), status: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.status < 200 || capture.status >= 300 {
				capture.flush(w, capture.body.Bytes())
				return
			}
			masked, changed := maskBody(r, engine, capture.body.Bytes(), resourceType, accessor, logger)
			if !changed {
				capture.flush(w, capture.body.Bytes())
				return
			}
			capture.flush(w, masked)
		})
	}
}

func maskBody(r *http.Request, engine *masking.Engine, body []byte, resourceType string, accessor middleware.Accessor, logger *slog.Logger) ([]byte, bool) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false
	}

	ctx := r.Context()
	switch trimmed[0] {
	case '{':
		var record map[string]any
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, false
		}
		masked, err := engine.ApplyMasking(ctx, record, resourceType, accessor.Role, accessor.TenantID)
		if err != nil {
			logger.WarnContext(ctx, "response masking skipped", "resource_type", resourceType, "error", err)
			return nil, false
		}
		out, err := json.Marshal(masked)
		if err != nil {
			return nil, false
		}
		return out, true
	case '[':
		var records []map[string]any
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, false
		}
		masked, err := engine.ApplyMaskingAll(ctx, records, resourceType, accessor.Role, accessor.TenantID)
		if err != nil {
			logger.WarnContext(ctx, "response masking skipped", "resource_type", resourceType, "error", err)
			return nil, false
		}
		out, err := json.Marshal(masked)
		if err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// responseCapture buffers the downstream response so the body can be rewritten
// before anything reaches the client.
type responseCapture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *responseCapture) Header() http.Header { return c.header }

func (c *responseCapture) WriteHeader(status int) { c.status = status }

func (c *responseCapture) Write(p []byte) (int, error) { return c.body.Write(p) }

func (c *responseCapture) flush(w http.ResponseWriter, body []byte) {
	for key, values := range c.header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(c.status)
	_, _ = w.Write(body)
}
