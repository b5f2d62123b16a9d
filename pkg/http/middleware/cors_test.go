package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func corsServer(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(CORS(origins...))
	e.GET("/api/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}

func do(e *echo.Echo, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/health", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	e := corsServer("https://board.example")
	rec := do(e, http.MethodGet, "https://board.example")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "https://board.example" {
		t.Fatalf("code=%d headers=%v", rec.Code, rec.Header())
	}
	rec = do(e, http.MethodGet, "https://other.example")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Fatalf("unlisted origin got CORS headers: %v", rec.Header())
	}
}

func TestCORSPreflight(t *testing.T) {
	e := corsServer("*")
	rec := do(e, http.MethodOptions, "https://any.example")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight code = %d", rec.Code)
	}
	h := rec.Header()
	if h.Get(echo.HeaderAccessControlAllowOrigin) != "*" || h.Get(echo.HeaderAccessControlAllowMethods) != corsMethods {
		t.Fatalf("preflight headers = %v", h)
	}
	if h.Get(echo.HeaderAccessControlMaxAge) != "600" {
		t.Fatalf("max age = %q", h.Get(echo.HeaderAccessControlMaxAge))
	}
}
