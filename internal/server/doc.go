// Package server serves the clipsync JSON API.
//
// # Routing
//
// [BasicRouter] mounts method qualified [http.ServeMux] patterns under a common prefix
// ("/api/core/v1") and wraps each route in the router's [Middleware] followed by the route's own.
// Types implementing [Handler] register their own full patterns, which is how the health check is served.
//
// # Authentication
//
// Desktop routes (/clipboard/sync) require a device API key ("Bearer cpb_...") and are limited per
// device by a token bucket. User routes accept either a session token or a device API key, both of
// which resolve to the owning user. POST /devices/register is public but honours a session when one
// is sent, and GET /ws-tokens/{token} is public.
//
// # Responses
//
// Every response is an envelope {"data": ..., "error": ...} with exactly one field set. Service errors
// map to statuses by sentinel: invalid input 400, unauthorized 401, forbidden or unverified 403,
// not found 404, conflict 409, rate limited 429 and anything else 500 with the cause logged.
package server
