package cache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cached query. Segments are compared by their JSON
// encoding, so 42 and int64(42) are the same segment and map segments
// compare independent of insertion order.
type Key []any

// Query keys for orders. Detail keys live outside the "orders" root, so
// invalidating the root refreshes lists and aggregates but not details.
var OrdersRoot = Key{"orders"}

// OrderRoot prefixes every single-order key, details and tracking lookups.
var OrderRoot = Key{"order"}

// RefreshRoots are the prefixes refreshed when events may have been missed.
func RefreshRoots() []Key { return []Key{OrdersRoot, OrderRoot} }

// OrderList is the key of one filtered order list. A nil filter is the
// unfiltered list.
func OrderList(filter any) Key {
	if filter == nil {
		return Key{"orders", "list"}
	}
	return Key{"orders", "list", filter}
}

// OrderStats is the key of the order statistics.
func OrderStats() Key { return Key{"orders", "stats"} }

// OrderDashboard is the key of the dashboard summary.
func OrderDashboard() Key { return Key{"orders", "dashboard"} }

// OrderDetail is the key of a single order.
func OrderDetail(id int64) Key { return Key{"order", id} }

// OrderTracking is the key of an order looked up by tracking code.
func OrderTracking(code string) Key { return Key{"order", "tracking", code} }

// String returns the canonical encoding used for identity.
func (k Key) String() string {
	return "[" + strings.Join(k.segments(), ",") + "]"
}

// HasPrefix reports whether prefix matches the leading segments of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	own := k.segments()
	for i, seg := range prefix.segments() {
		if own[i] != seg {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have the same segments.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func (k Key) segments() []string {
	out := make([]string, len(k))
	for i, seg := range k {
		out[i] = segment(seg)
	}
	return out
}

func segment(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(b)
}
