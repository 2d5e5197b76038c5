// Package livesync wires the realtime order synchronization client together.
//
// A Service owns exactly one Connection Manager. A single goroutine consumes
// the manager's events in transport order. Lifecycle events update the status
// board and drive connection toasts. Message events go to the dispatcher,
// which invalidates the query cache and shows per-event toasts.
//
// Usage:
//
//	svc, err := livesync.New(cfg, notify.NewLogPresenter(logger), logger)
//	if err != nil { ... }
//	if err := svc.Start(ctx); err != nil { ... }
//	defer svc.Stop(context.Background())
package livesync
