package websocket

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hbomb79/Aria/pkg/logger"
)

var socketLogger = logger.Get("WebSocket")

type socketClient struct {
	id     uuid.UUID
	socket *websocket.Conn
}

func (client *socketClient) SendMessage(message *SocketMessage) error {
	return client.socket.WriteJSON(message)
}

func (client *socketClient) Close() {
	client.socket.Close()
}

// SocketHub is the struct responsible for managing the websocket
// upgrading, connecting and broadcasting of messages. The activity feed
// is push-only: client traffic is drained and discarded, serving only
// to detect disconnection.
type SocketHub struct {
	upgrader           *websocket.Upgrader
	clients            []*socketClient
	registerCh         chan *socketClient
	deregisterCh       chan *socketClient
	sendCh             chan *SocketMessage
	connectionCallback func() map[string]interface{}
	running            bool
}

// New returns a new SocketHub with the channels,
// maps and slices initialised to sane starting
// values
func New() *SocketHub {
	return &SocketHub{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sendCh:       make(chan *SocketMessage, 64),
		registerCh:   make(chan *socketClient),
		deregisterCh: make(chan *socketClient),
		running:      false,
	}
}

// WithConnectionCallback sets a callback that will be executed each time a new client
// connects to this socketHub. This allows the client to be furnished with a payload
// of the servers current state, without having to wait for an UPDATE packet from the
// server (which may never come if the content does not change).
func (hub *SocketHub) WithConnectionCallback(callback func() map[string]interface{}) {
	hub.connectionCallback = callback
}

// Start begins the socket hub by listening on all related channels
// for incoming clients and messages
func (hub *SocketHub) Start(ctx context.Context) {
	if hub.running {
		socketLogger.Emit(logger.WARNING, "Attempting to start socketHub when already running! Ignoring request.\n")
		return
	} else if ctx.Err() != nil {
		socketLogger.Emit(logger.STOP, "Refusing to start socket hub as provided context is already cancelled\n")
		return
	}
	socketLogger.Emit(logger.INFO, "Opening SocketHub!\n")

	hub.clients = make([]*socketClient, 0)
	hub.running = true

	defer hub.close()
	for {
		select {
		case message := <-hub.sendCh:
			hub.broadcastMessage(message)
		case client := <-hub.registerCh:
			if idx, _ := hub.findClient(client.id); idx > -1 {
				socketLogger.Emit(logger.ERROR, "Attempted to register client that is already registered (duplicate uuid)! Illegal!\n")
				client.Close()

				break
			}

			hub.clients = append(hub.clients, client)
			socketLogger.Emit(logger.NEW, "Registered new client {%v}\n", client.id)

			if hub.connectionCallback != nil {
				welcome := &SocketMessage{Title: "CONNECTION_ESTABLISHED", Body: hub.connectionCallback(), Type: Welcome}
				if err := client.SendMessage(welcome); err != nil {
					socketLogger.Emit(logger.WARNING, "Failed to send welcome payload to {%v}: %v\n", client.id, err)
				}
			}
		case client := <-hub.deregisterCh:
			if idx, _ := hub.findClient(client.id); idx > -1 {
				hub.clients = append(hub.clients[:idx], hub.clients[idx+1:]...)
				client.Close()
				socketLogger.Emit(logger.REMOVE, "Deregistered client {%v}\n", client.id)
			}
		case <-ctx.Done():
			socketLogger.Emit(logger.STOP, "SocketHub context has been cancelled\n")
			return
		}
	}
}

// UpgradeToSocket upgrades the HTTP request provided to a websocket
// connection and registers the new client with the hub. The clients
// read loop (used only to detect disconnection) runs on a fresh
// goroutine.
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	if !hub.running {
		socketLogger.Emit(logger.WARNING, "Rejecting websocket upgrade as hub is not running\n")
		http.Error(w, "activity feed unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade connection to websocket: %v\n", err)
		return
	}

	client := &socketClient{id: uuid.New(), socket: conn}
	hub.registerCh <- client

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.deregisterCh <- client
				return
			}
		}
	}()
}

// Send queues the message provided for broadcast to every connected
// client. The activity feed is best-effort: if the hubs buffer is full
// (or the hub is stopped) the message is dropped rather than blocking
// the dispatcher.
func (hub *SocketHub) Send(message *SocketMessage) {
	select {
	case hub.sendCh <- message:
	default:
		socketLogger.Emit(logger.WARNING, "Dropping activity message '%s' as hub buffer is saturated\n", message.Title)
	}
}

// broadcastMessage sends the message to every connected client.
func (hub *SocketHub) broadcastMessage(message *SocketMessage) {
	for _, client := range hub.clients {
		if err := client.SendMessage(message); err != nil {
			socketLogger.Emit(logger.ERROR, "Failed to send message to client {%v}: %v\n", client.id, err)
		}
	}
}

// findClient returns the index and client matching the uuid provided,
// or (-1, nil).
func (hub *SocketHub) findClient(id uuid.UUID) (int, *socketClient) {
	for idx, client := range hub.clients {
		if client.id == id {
			return idx, client
		}
	}

	return -1, nil
}

func (hub *SocketHub) close() {
	for _, client := range hub.clients {
		client.Close()
	}

	hub.clients = nil
	hub.running = false
}
