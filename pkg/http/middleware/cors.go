package middleware

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	corsMethods = "GET, HEAD, OPTIONS"
	corsHeaders = echo.HeaderOrigin + ", " + echo.HeaderAccept + ", " + echo.HeaderContentType
	corsMaxAge  = 10 * 60 // seconds a browser may cache the preflight
)

// CORS lets dashboards on the listed origins read the API. "*" allows any
// origin. Requests from other origins pass through without CORS headers, so
// the browser blocks them; preflights are answered here and never reach the
// handlers.
func CORS(origins ...string) echo.MiddlewareFunc {
	wildcard := slices.Contains(origins, "*")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			if origin == "" || !(wildcard || slices.Contains(origins, origin)) {
				return next(c)
			}

			if wildcard {
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			} else {
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			}
			if c.Request().Method != http.MethodOptions {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
			h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(corsMaxAge))
			return c.NoContent(http.StatusNoContent)
		}
	}
}
