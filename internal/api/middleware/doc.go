// Package middleware provides the HTTP middleware of the watchdog API.
//
//   - CORS: cross-origin access for dashboards, exposing the trace headers
//   - RateLimit: per-IP token buckets with idle eviction; /health and
//     /metrics are exempt
//   - GlobalRateLimit: a single bucket for the whole router
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
