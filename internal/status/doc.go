// Package status binds connection state to what the user sees: the blocking
// disconnect modal and the connected-user badge.
package status
