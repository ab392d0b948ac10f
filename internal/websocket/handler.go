package websocket

import (
	"context"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/household"
	"github.com/dukerupert/choreweek/internal/rotation"
)

// HandleWebSocket upgrades /ws?household={id}[&week={key}] connections. The
// client first receives the current household document (and week document
// when asked for), then every committed change under that household. With a
// week, changes to other weeks are filtered out; the client switches weeks by
// sending {"type":"follow","week":"2025-W35"}.
func HandleWebSocket(hub *Hub, docs docstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := household.SanitizeID(r.URL.Query().Get("household"))
		if err != nil {
			http.Error(w, "household is required", http.StatusBadRequest)
			return
		}
		week := r.URL.Query().Get("week")
		if week != "" && !rotation.ValidWeekKey(week) {
			http.Error(w, "invalid week", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Allow connections from any origin (household LAN)
		})
		if err != nil {
			hub.logger.Error("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, id, week)
		client.onFollow = func(ctx context.Context, week string) {
			sendInitial(ctx, hub, client, docs, weekPath(id, week))
		}
		hub.Register(client)
		paths := []string{"households/" + id}
		if week != "" {
			paths = append(paths, weekPath(id, week))
		}
		sendInitial(r.Context(), hub, client, docs, paths...)
		client.Run(r.Context())
	}
}

// sendInitial queues the current state ahead of any change notifications.
// Registration happens first so that nothing committed in between is lost.
func sendInitial(ctx context.Context, hub *Hub, c *Client, docs docstore.Store, paths ...string) {
	for _, path := range paths {
		sub, err := docs.Subscribe(ctx, path)
		if err != nil {
			hub.logger.Error("websocket initial snapshot", "path", path, "error", err)
			continue
		}
		snap := <-sub.Events()
		sub.Close()
		if msg, ok := NewMessage(snap); ok {
			hub.sendTo(c, msg)
		}
	}
}

func weekPath(id, week string) string {
	return "households/" + id + "/weeks/" + week
}
