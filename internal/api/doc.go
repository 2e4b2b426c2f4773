// Package api implements the HTTP REST API and live WebSocket channel of
// the smart pot core.
//
// This package provides:
//   - Device ingest (POST /api/v1/measurements), gated by a shared device key
//   - Measurement history and latest-per-metric reads for a flower
//   - Binding operations: connect, disconnect and the six transplant modes
//   - An on-demand binding reconcile and the binding audit trail
//   - A live channel per flower at /ws/measurements/{flowerID}?token=...
//
// # Errors
//
// Domain errors from the binding and telemetry packages are mapped to
// statuses in one place: invalid input is 400, missing entities 404,
// binding conflicts 409 and a binding that could not be undone 500 with
// code partial_failure and the affected IDs in details.
//
// # Live Channel
//
// Each connection is registered with the live registry under its user.
// A second connection by the same user replaces the first. Outbound frames
// are queued per connection and written by a single writer goroutine, so a
// slow client only loses its own messages.
package api
