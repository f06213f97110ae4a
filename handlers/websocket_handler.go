package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/esports-arena/brackets"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced at the router; the socket accepts any
		// origin that got that far.
		return true
	},
}

type WebsocketHandler struct {
	hub *brackets.Hub
}

func NewWebsocketHandler(hub *brackets.Hub) *WebsocketHandler {
	return &WebsocketHandler{hub: hub}
}

// SubscribeHandler handles GET /tournaments/{tournamentID}/ws, upgrading the
// connection and joining the tournament's event room.
func (h *WebsocketHandler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "tournament_id", tournamentID, "error", err)
		return
	}
	h.hub.Subscribe(brackets.NewClient(h.hub, conn, tournamentID))
}
