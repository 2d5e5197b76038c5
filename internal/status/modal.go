package status

import (
	"fmt"

	"github.com/aquaice/livesync/internal/reconnect"
)

// ModalView is the disconnect modal for one connection state.
type ModalView struct {
	Visible        bool
	Title          string
	Description    string
	AttemptLabel   string
	ButtonLabel    string
	ButtonDisabled bool
}

// Modal copy.
const (
	TitleConnecting   = "Conectando..."
	TitleLost         = "Conexión perdida"
	TitleDisconnected = "Desconectado"

	DescConnecting   = "Estableciendo comunicación con el servidor."
	DescReconnecting = "Intentando restablecer la comunicación con el servidor."
	DescExhausted    = "No se pudo establecer comunicación con el servidor."
	DescDisconnected = "No hay conexión con el servidor."

	ButtonConnecting   = "Conectando..."
	ButtonReconnecting = "Reconectando..."
	ButtonRetry        = "Reintentar conexión"
)

// Modal returns the modal for state. It is hidden only while connected.
func Modal(state reconnect.State, attempt, max int) ModalView {
	switch state {
	case reconnect.Connected:
		return ModalView{}

	case reconnect.Connecting:
		return ModalView{
			Visible:        true,
			Title:          TitleConnecting,
			Description:    DescConnecting,
			AttemptLabel:   attemptLabel(attempt, max),
			ButtonLabel:    ButtonConnecting,
			ButtonDisabled: true,
		}

	case reconnect.Reconnecting:
		return ModalView{
			Visible:        true,
			Title:          TitleLost,
			Description:    DescReconnecting,
			AttemptLabel:   attemptLabel(attempt, max),
			ButtonLabel:    ButtonReconnecting,
			ButtonDisabled: true,
		}

	case reconnect.Exhausted:
		return ModalView{
			Visible:      true,
			Title:        TitleLost,
			Description:  DescExhausted,
			AttemptLabel: fmt.Sprintf("Se agotaron los %d intentos de reconexión", max),
			ButtonLabel:  ButtonRetry,
		}

	default:
		return ModalView{
			Visible:     true,
			Title:       TitleDisconnected,
			Description: DescDisconnected,
			ButtonLabel: ButtonRetry,
		}
	}
}

// attemptLabel renders "Intento N de M". A manual attempt past the maximum
// is shown as is.
func attemptLabel(attempt, max int) string {
	if attempt < 1 {
		return ""
	}
	return fmt.Sprintf("Intento %d de %d", attempt, max)
}
