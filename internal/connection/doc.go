// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one WebSocket handle at a time
//   - Reconnects after abnormal closures with a capped, stepped backoff (1s, 2s, 3s)
//   - Gates outbound sends on readiness, in FIFO order
//   - Decodes {"event", "data"} frames and publishes them to a Publisher,
//     falling back to the "message" tag for anything else
package connection
