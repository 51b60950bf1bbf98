package main

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"voice-intake-bridge/internal/models"
)

// Hub fans transcript events out to connected browsers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan models.TranscriptEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan models.TranscriptEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// run owns the client set until stop is closed.
func (h *Hub) run(stop <-chan struct{}) {
	defer close(h.done)
	for {
		select {
		case <-stop:
			for conn := range h.clients {
				conn.Close()
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			log.Info().Int("clients", len(h.clients)).Msg("Client connected")

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			log.Info().Int("clients", len(h.clients)).Msg("Client disconnected")

		case event := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					log.Warn().Err(err).Msg("Write error, dropping client")
					conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

// publish queues an event, dropping it once the hub has stopped.
func (h *Hub) publish(event models.TranscriptEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		select {
		case hub.register <- conn:
		case <-hub.done:
			conn.Close()
			return
		}

		// Browsers only listen; reading detects the disconnect.
		go func() {
			defer func() {
				select {
				case hub.unregister <- conn:
				case <-hub.done:
				}
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
