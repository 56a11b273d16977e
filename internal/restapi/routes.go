package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (api *RestAPI) SetRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodGet, "/api/layers", api.layersHandler)
	router.HandlerFunc(http.MethodGet, "/api/layers/:name", api.layerHandler)
	router.HandlerFunc(http.MethodGet, "/api/summary", api.summaryHandler)
	router.HandlerFunc(http.MethodGet, "/healthz", api.healthHandler)

	router.NotFound = http.HandlerFunc(api.notFoundResponse)
}

// Handler wraps router with the middleware chain shared by every route:
// request logging, security headers, compression, then rate limiting.
func (api *RestAPI) Handler(router http.Handler) http.Handler {
	var h http.Handler = router
	if api.rateLimiter != nil {
		h = api.rateLimiter.Handler(h)
	}
	h = CompressionMiddleware(h)
	h = api.WithSecurityHeaders(h)
	return NewRequestLoggingMiddleware(api.Logger)(h)
}
