// Package notify implements the Notification Presenter.
//
// A toast has a kind (success, info, warning, error), a message, and optional
// title, icon, duration and action button. Showing a toast with the ID of a
// visible one replaces it. Toasts dismiss themselves when their duration ends.
package notify
