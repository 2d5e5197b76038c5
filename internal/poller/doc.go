// Package poller implements the offline refresh poller.
//
// While the realtime connection is down, pushed order events are missed. The
// poller:
//   - Checks the connection every interval (default 30s)
//   - Invalidates the configured cache prefixes while offline
//   - Does nothing while connected, since events keep the cache fresh
package poller
