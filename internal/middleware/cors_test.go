package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{name: "explicit origin", allowed: []string{"https://chatbuddy.app"}, origin: "https://chatbuddy.app", method: http.MethodGet, wantOrigin: "https://chatbuddy.app", wantCreds: "true", wantStatus: http.StatusTeapot},
		{name: "wildcard has no credentials", allowed: []string{"*"}, origin: "https://x.example", method: http.MethodGet, wantOrigin: "https://x.example", wantStatus: http.StatusTeapot},
		{name: "foreign origin", allowed: []string{"https://chatbuddy.app"}, origin: "https://x.example", method: http.MethodGet, wantStatus: http.StatusTeapot},
		{name: "preflight", allowed: []string{"*"}, origin: "https://x.example", method: http.MethodOptions, wantOrigin: "https://x.example", wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/chat", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}
