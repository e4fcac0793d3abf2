// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of raw http.ResponseWriter calls so JSON
// formatting and error envelopes stay identical across the engine API, the
// callback endpoints and the tracking service.
package httputil
