// Package dispatch implements the Event Dispatcher.
//
// Inbound Socket.IO events are looked up in a table built at construction,
// one handler per documented event name. Handlers decode the payload and
// produce side effects only: cache invalidation, toasts and the connected user
// counter. They never touch transport state.
//
// Unknown names are counted and ignored. Malformed payloads are dropped. A
// handler that fails or panics is logged and counted, and dispatch continues
// with the next event.
package dispatch
