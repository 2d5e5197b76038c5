// Package events defines the realtime wire contract: the names of events the
// server pushes, their typed payloads, and the events the client may emit.
//
// Inbound:
//   - order:created, order:updated, order:status_changed, order:deleted
//   - notification (optionally targeted with userId)
//   - user_count
//   - user:connected, user:disconnected
//
// Outbound: join_room, leave_room, ping, request_data_refresh.
package events
