// Package api defines the public types shared between the engine, the HTTP
// server, and clients: workflow definitions in both of their equivalent
// forms, per-type configuration field schemas, execution state with its
// event payloads, and the request/response shapes of the HTTP and WebSocket
// interfaces.
package api
