// Package cache implements the query cache behind the live views.
//
// Entries are addressed by hierarchical keys. Invalidating a key prefix marks
// every matching entry stale and refetches the ones a view is watching, which
// is how realtime events keep lists, stats and details current.
package cache
