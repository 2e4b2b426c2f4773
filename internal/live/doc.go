// Package live tracks the live push connections of signed-in users.
//
// Each user holds at most one connection, subscribed at handshake time to
// a single flower. Telemetry for that flower is broadcast to every
// subscribed connection; alerts are sent to individual users.
//
// The registry knows nothing about the transport. Anything implementing
// Conn can be registered; the WebSocket endpoint in package api is the
// production implementation.
package live
