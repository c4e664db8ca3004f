// Package protocol defines the JSON frames exchanged with the messaging server.
//
// Frames are JSON objects, one per WebSocket text message:
//   - Request:      {"method", "params", "id"}
//   - Response:     {"result" | "error", "id"}
//   - Notification: {"method", "params"} (no id)
//
// Request and notification parameters form a closed set of Params variants,
// one per method.
package protocol
