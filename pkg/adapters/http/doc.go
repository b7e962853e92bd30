// Package http exposes a running machine over HTTP.
//
// Control endpoints map one-to-one on the Orchestrator port; GET /ws
// streams status reports, state changes and exceptions as JSON envelopes.
package http
