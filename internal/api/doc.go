// Package api provides the REST client for the orders endpoints.
//
// Responses use the envelope {"success": bool, "data": ...}. Errors carry
// {"success": false, "error": "..."}.
//
// Endpoints:
//   - GET /orders            list with filters and pagination
//   - GET /orders/{id}       one order
//   - GET /orders/track/{c}  one order by tracking code
//   - GET /orders/stats      counters per status
//   - GET /orders/dashboard  recent orders and daily totals
//
// The client methods double as cache fetchers for the realtime views.
package api
