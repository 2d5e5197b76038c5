// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one Socket.IO session over a WebSocket transport
//   - Authenticates with a bearer token (header and connect packet)
//   - Answers server pings and detects ping timeouts
//   - Reconnects with a fixed delay, bounded by the reconnect state machine
//   - Delivers lifecycle and message events on a single ordered channel
package connection
