package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ghlvoice/control-plane/internal/audit"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

// LocationKey is the context key for the GHL location (sub-account) id.
const LocationKey contextKey = "location_id"

// DefaultLocation is used when a request names no location.
const DefaultLocation = "default"

// LocationExtractor resolves the GHL location for the request.
// It checks the X-GHL-Location-Id header, then the location_id query
// parameter, and falls back to "default". The location and request id are
// attached to the context as audit fields.
func LocationExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		location := ""

		// Priority 1: header
		if h := r.Header.Get("X-GHL-Location-Id"); h != "" {
			location = strings.TrimSpace(h)
		}

		// Priority 2: query parameter
		if location == "" {
			if q := r.URL.Query().Get("location_id"); q != "" {
				location = strings.TrimSpace(q)
			}
		}

		if location == "" {
			location = DefaultLocation
		}

		ctx := context.WithValue(r.Context(), LocationKey, location)
		fields := map[string]interface{}{"location_id": location}
		if reqID := chimw.GetReqID(ctx); reqID != "" {
			fields["request_id"] = reqID
		}
		ctx = audit.WithFields(ctx, fields)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLocation retrieves the location id from the request context.
func GetLocation(ctx context.Context) string {
	if v, ok := ctx.Value(LocationKey).(string); ok {
		return v
	}
	return DefaultLocation
}
