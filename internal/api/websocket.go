package api

import (
	"net/http"
	"time"

	"villaops/internal/events"
	"villaops/internal/models"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by the CORS layer and API keys
	CheckOrigin: func(r *http.Request) bool { return true },
}

// changeFilter reads collections, ops, property_id and staff_id.
func changeFilter(r *http.Request) (events.Filter, error) {
	var f events.Filter
	var err error
	f.Collections = splitCSV(r.URL.Query().Get("collections"))
	for _, op := range splitCSV(r.URL.Query().Get("ops")) {
		f.Ops = append(f.Ops, events.Op(op))
	}
	if f.PropertyID, err = queryInt64(r, "property_id"); err != nil {
		return f, err
	}
	if f.StaffID, err = queryInt64(r, "staff_id"); err != nil {
		return f, err
	}
	return f, nil
}

// handleWebSocket streams matching feed changes to the client as JSON
// messages until either side closes. A client that cannot keep up loses
// changes instead of stalling the feed.
func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter, err := changeFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := zerolog.Ctx(r.Context()).With().Str("component", "ws").Logger()
	out := make(chan events.Change, models.SubscriberBuffer)
	unsubscribe := s.svc.Feed.Subscribe(filter, func(c events.Change) {
		select {
		case out <- c:
		default:
			log.Warn().Str("change_id", c.ID).Msg("websocket client too slow, change dropped")
		}
	})
	defer unsubscribe()
	log.Info().Strs("collections", filter.Collections).Msg("websocket client subscribed")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Info().Msg("websocket client disconnected")
			return
		case <-r.Context().Done():
			return
		case c := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(c); err != nil {
				log.Warn().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
