package ws

import (
	"encoding/json"

	"readingsurvey/internal/logger"
)

// MessageType defines the type of WebSocket message
type MessageType string

const MsgSessionView MessageType = "session_view"

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans session views out to every connection of a tab. All map access
// happens on the run goroutine.
type Hub struct {
	conns map[string]map[*Connection]struct{} // tabID -> connections

	register   chan *Connection
	unregister chan *Connection
	disconnect chan string
	broadcast  chan *BroadcastMessage

	log *logger.Logger
}

// Connection represents a WebSocket connection
type Connection struct {
	TabID string
	Send  chan []byte
	Hub   *Hub
}

// BroadcastMessage is a message for one tab
type BroadcastMessage struct {
	TabID   string
	Message *Message
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		disconnect: make(chan string),
		broadcast:  make(chan *BroadcastMessage, 256),
		log:        log.With("component", "ws_hub"),
	}
	go h.run()
	return h
}

// NewConnection creates a connection for tabID with a buffered send queue
func (h *Hub) NewConnection(tabID string) *Connection {
	return &Connection{TabID: tabID, Send: make(chan []byte, 256), Hub: h}
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			if h.conns[conn.TabID] == nil {
				h.conns[conn.TabID] = make(map[*Connection]struct{})
			}
			h.conns[conn.TabID][conn] = struct{}{}
			h.log.Debug("tab connected", "tab_id", conn.TabID, "connections", len(h.conns[conn.TabID]))

		case conn := <-h.unregister:
			if tab, ok := h.conns[conn.TabID]; ok {
				if _, ok := tab[conn]; ok {
					delete(tab, conn)
					close(conn.Send)
					if len(tab) == 0 {
						delete(h.conns, conn.TabID)
					}
					h.log.Debug("tab disconnected", "tab_id", conn.TabID)
				}
			}

		case tabID := <-h.disconnect:
			for conn := range h.conns[tabID] {
				close(conn.Send)
			}
			delete(h.conns, tabID)

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				h.log.Error("failed to encode message", "type", msg.Message.Type, "error", err)
				continue
			}
			for conn := range h.conns[msg.TabID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToTab sends a message to every connection of a tab (implements service.Broadcaster)
func (h *Hub) BroadcastToTab(tabID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to encode payload", "type", msgType, "error", err)
		return
	}
	h.broadcast <- &BroadcastMessage{
		TabID: tabID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
}

// DisconnectTab closes every connection of a tab (implements service.Broadcaster)
func (h *Hub) DisconnectTab(tabID string) {
	h.disconnect <- tabID
}
