package websocket

import (
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/metrics"
)

type userMessage struct {
	userID  int64
	message []byte
}

type clientMessage struct {
	client  *Client
	message []byte
}

// Hub maintains the set of active clients and routes messages to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Messages for every connected client.
	Broadcast chan []byte

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Messages addressed to one user's connections.
	notify chan userMessage

	// Direct replies to a single connection.
	replies chan clientMessage

	// A map of user IDs to the clients that user has open.
	subscriptions map[int64]map[*Client]bool

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:     make(chan []byte),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		notify:        make(chan userMessage, 256),
		replies:       make(chan clientMessage, 256),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[int64]map[*Client]bool),
		done:          make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			log.Info().Msg("Websocket hub stopped")
			return
		case client := <-h.Register:
			h.clients[client] = true
			h.addSubscription(client)
			metrics.WebSocketConnections.Inc()
			log.Info().Int64("user_id", client.UserID).Int("total_clients", len(h.clients)).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int64("user_id", client.UserID).Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				h.send(client, message)
			}
		case m := <-h.notify:
			for client := range h.subscriptions[m.userID] {
				h.send(client, m.message)
			}
		case m := <-h.replies:
			// The client may have left since the reply was queued.
			if h.clients[m.client] {
				h.send(m.client, m.message)
			}
		}
	}
}

// Stop ends the run loop and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Join registers client with the running hub.
func (h *Hub) Join(client *Client) {
	select {
	case h.Register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Leave unregisters client. It is a no-op once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// NotifyUser queues a message for every connection the user has open.
// Users without a connection simply miss it.
func (h *Hub) NotifyUser(userID int64, action string, payload interface{}) {
	message, err := NewMessage(action, payload)
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket notification")
		return
	}
	select {
	case h.notify <- userMessage{userID: userID, message: message}:
	case <-h.done:
	default:
		metrics.WebSocketDrops.Inc()
		log.Warn().Int64("user_id", userID).Str("action", action).Msg("Notification queue full, dropping message")
	}
}

// Reply queues a message for one connection. It is dropped if the client has
// left, the hub has stopped, or the queue is full.
func (h *Hub) Reply(client *Client, message []byte) {
	select {
	case h.replies <- clientMessage{client: client, message: message}:
	case <-h.done:
	default:
		metrics.WebSocketDrops.Inc()
		log.Warn().Int64("user_id", client.UserID).Msg("Reply queue full, dropping message")
	}
}

// BroadcastAll sends a message to every connected client.
func (h *Hub) BroadcastAll(action string, payload interface{}) {
	message, err := NewMessage(action, payload)
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket broadcast")
		return
	}
	select {
	case h.Broadcast <- message:
	case <-h.done:
	}
}

// send delivers to one client, dropping it if it is not keeping up.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		metrics.WebSocketDrops.Inc()
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.removeSubscription(client)
	metrics.WebSocketConnections.Dec()
}

func (h *Hub) addSubscription(client *Client) {
	if h.subscriptions[client.UserID] == nil {
		h.subscriptions[client.UserID] = make(map[*Client]bool)
	}
	h.subscriptions[client.UserID][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	if subs, ok := h.subscriptions[client.UserID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, client.UserID)
		}
	}
}
