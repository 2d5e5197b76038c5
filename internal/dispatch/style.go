package dispatch

import (
	"github.com/aquaice/livesync/internal/events"
	"github.com/aquaice/livesync/internal/notify"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Style is the presentation of one kind of event.
type Style struct {
	Kind notify.Kind
	Icon string
}

var (
	styleCreated      = Style{Kind: notify.KindSuccess, Icon: "🆕"}
	styleUpdated      = Style{Kind: notify.KindInfo, Icon: "✏️"}
	styleDeleted      = Style{Kind: notify.KindWarning, Icon: "🗑️"}
	styleNotification = Style{Kind: notify.KindInfo, Icon: "🔔"}
	stylePresence     = Style{Kind: notify.KindInfo, Icon: "👤"}
)

var statusIcons = map[events.OrderStatus]string{
	events.StatusPending:    "⏳",
	events.StatusPreparing:  "📦",
	events.StatusDispatched: "🚛",
	events.StatusDelivered:  "✅",
	events.StatusCancelled:  "❌",
}

// StatusStyle returns the style of an order:status_changed toast.
func StatusStyle(s events.OrderStatus) Style {
	style := Style{Kind: notify.KindInfo, Icon: statusIcons[s]}
	switch s {
	case events.StatusDelivered:
		style.Kind = notify.KindSuccess
	case events.StatusCancelled:
		style.Kind = notify.KindWarning
	}
	if style.Icon == "" {
		style.Icon = "🔄"
	}
	return style
}

// StatusTitle renders a status for a toast title, e.g. "Despachado".
func StatusTitle(s events.OrderStatus) string {
	// Casers are stateful and cannot be shared between goroutines.
	return cases.Title(language.Spanish).String(string(s))
}

// Fallback copy for payloads without a message.
const (
	msgCreated       = "Nuevo pedido creado"
	msgUpdated       = "Pedido actualizado"
	msgStatusChanged = "Estado del pedido actualizado"
	msgDeleted       = "Pedido eliminado"
	msgConnected     = "Usuario conectado"
	msgDisconnected  = "Usuario desconectado"
)

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
