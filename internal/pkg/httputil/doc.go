// Package httputil provides shared HTTP response/request utilities for the
// engine's webhook, tracking and control handlers.
//
// Handlers use these helpers instead of raw http.ResponseWriter calls so JSON
// formatting, error envelopes and logging stay consistent.
package httputil
