package sink

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cwsl/nfclab/internal/tech"
)

// WebsocketSink broadcasts every emitted RawFrame as a JSON text message to
// every connected client, grounded on the front end's broadcast-map
// handler pattern (one write mutex per connection).
type WebsocketSink struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewWebsocketSink creates an empty broadcaster.
func NewWebsocketSink() *WebsocketSink {
	return &WebsocketSink{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades an HTTP request to a websocket connection and
// registers it to receive frame broadcasts until the client disconnects.
func (s *WebsocketSink) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket sink: upgrade: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = &sync.Mutex{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish broadcasts one frame to every connected client.
func (s *WebsocketSink) Publish(f tech.RawFrame) {
	data, err := json.Marshal(toPayload(f))
	if err != nil {
		log.Printf("websocket sink: marshal frame: %v", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn, mu := range s.clients {
		mu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mu.Unlock()
		if err != nil {
			log.Printf("websocket sink: write: %v", err)
		}
	}
}
