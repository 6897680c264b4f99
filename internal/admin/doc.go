// Package admin serves the operator web surface: a password-gated HTML page to
// list, create and delete events, a JSON listing at /api/events, plus
// /healthz and /metrics.
//
// The password is accepted from the pw query or form field, which keeps
// bookmarked admin URLs working. Bind the server to a trusted network or put a
// TLS proxy in front of it.
package admin
