package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ghlvoice/control-plane/internal/api/middleware"
	"github.com/ghlvoice/control-plane/internal/audit"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func TestLocationExtractor(t *testing.T) {
	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header wins", "loc-h", "loc-q", "loc-h"},
		{"query fallback", "", "loc-q", "loc-q"},
		{"default", "", "", middleware.DefaultLocation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var (
				got    string
				fields map[string]interface{}
			)
			h := chimw.RequestID(middleware.LocationExtractor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = middleware.GetLocation(r.Context())
				fields = audit.FieldsFromContext(r.Context())
			})))

			url := "/api/v1/agents/a/gate"
			if tc.query != "" {
				url += "?location_id=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("X-GHL-Location-Id", tc.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tc.want {
				t.Errorf("GetLocation() = %q, want %q", got, tc.want)
			}
			if fields["location_id"] != tc.want {
				t.Errorf("audit location_id = %v, want %q", fields["location_id"], tc.want)
			}
			if fields["request_id"] == nil {
				t.Error("audit fields should carry the request id")
			}
		})
	}
}
