// Package httputil provides HTTP handler utilities for consistent JSON
// responses, request parsing, and the middleware shared by the API server.
package httputil
