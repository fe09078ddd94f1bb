package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// ExposedHeaders are the response headers browsers may read cross-origin.
var ExposedHeaders = []string{echo.HeaderLastModified, "X-Artifact-Stale"}

// CORS allows read-only cross-origin access to the report API. An empty
// origin list allows any origin.
func CORS(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		ExposeHeaders: ExposedHeaders,
		MaxAge:        600,
	})
}
