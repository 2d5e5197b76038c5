package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aquaice/livesync/internal/dispatch"
	"github.com/aquaice/livesync/internal/livesync"
	"github.com/aquaice/livesync/internal/notify"
	"github.com/aquaice/livesync/internal/reconnect"
	"github.com/aquaice/livesync/internal/status"
)

type healthToast struct {
	Kind    notify.Kind `json:"kind"`
	Title   string      `json:"title,omitempty"`
	Message string      `json:"message"`
	Icon    string      `json:"icon,omitempty"`
	Action  string      `json:"action,omitempty"`
}

type reconnectResponse struct {
	Connection string `json:"connection"`
	Attempt    int    `json:"attempt"`
	Error      string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string           `json:"status"`
	Connection string           `json:"connection"`
	Attempt    int              `json:"attempt"`
	Users      int              `json:"users"`
	Modal      status.ModalView `json:"modal"`
	Dispatch   dispatch.Stats   `json:"dispatch"`
	Toasts     []healthToast    `json:"toasts"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// newHealthHandler serves the connection state, the modal a UI would show,
// and the visible toasts. POST /reconnect is the modal's retry button.
func newHealthHandler(svc *livesync.Service, toasts *notify.Stack) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := svc.Board().Snapshot()

		resp := healthResponse{
			Status:     "healthy",
			Connection: snap.State.String(),
			Attempt:    snap.Attempt,
			Users:      snap.UserCount,
			Modal:      snap.Modal,
			Dispatch:   svc.Stats(),
			Toasts:     []healthToast{},
			UpdatedAt:  snap.UpdatedAt,
		}
		switch snap.State {
		case reconnect.Connected:
		case reconnect.Exhausted, reconnect.Disconnected:
			resp.Status = "unhealthy"
		default:
			resp.Status = "degraded"
		}

		for _, t := range toasts.Visible() {
			ht := healthToast{Kind: t.Kind, Title: t.Title, Message: t.Message, Icon: t.Icon}
			if t.Action != nil {
				ht.Action = t.Action.Label
			}
			resp.Toasts = append(resp.Toasts, ht)
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("POST /reconnect", func(w http.ResponseWriter, r *http.Request) {
		err := svc.Reconnect(r.Context())

		resp := reconnectResponse{
			Connection: svc.State().String(),
			Attempt:    svc.Board().Snapshot().Attempt,
		}
		code := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			code = http.StatusBadGateway
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	})

	return mux
}
