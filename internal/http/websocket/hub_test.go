package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/hbomb79/Aria/internal/http/websocket"
	"github.com/stretchr/testify/assert"
)

// startHub runs a hub under a cancellable context and exposes it over
// an httptest server for clients to dial.
func startHub(t *testing.T, hub *websocket.SocketHub) string {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Start(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.UpgradeToSocket(w, r)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// dial connects to the hub, retrying until it reports itself running.
func dial(t *testing.T, url string) *gorilla.Conn {
	var conn *gorilla.Conn
	assert.Eventually(t, func() bool {
		c, resp, err := gorilla.DefaultDialer.Dial(url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return false
		}

		conn = c
		return true
	}, 5*time.Second, 10*time.Millisecond, "hub never accepted the connection")

	t.Cleanup(func() { conn.Close() })
	return conn
}

func Test_Hub_NewClientReceivesWelcomePayload(t *testing.T) {
	t.Parallel()

	hub := websocket.New()
	hub.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{"jobs": []string{"a", "b"}}
	})

	conn := dial(t, startHub(t, hub))

	var welcome websocket.SocketMessage
	assert.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	assert.Nil(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "CONNECTION_ESTABLISHED", welcome.Title)
	assert.Equal(t, []interface{}{"a", "b"}, welcome.Body["jobs"])
}

func Test_Hub_SendBroadcastsToClients(t *testing.T) {
	t.Parallel()

	hub := websocket.New()
	hub.WithConnectionCallback(func() map[string]interface{} { return nil })
	conn := dial(t, startHub(t, hub))

	// The welcome payload doubles as a registration barrier: once it
	// arrives, the broadcast below cannot outrun the client's
	// registration with the hub.
	var welcome websocket.SocketMessage
	assert.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	assert.Nil(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "CONNECTION_ESTABLISHED", welcome.Title)

	hub.Send(&websocket.SocketMessage{
		Title: "job:update",
		Body:  map[string]interface{}{"token": "abc"},
		Type:  websocket.Update,
	})

	var received websocket.SocketMessage
	assert.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	assert.Nil(t, conn.ReadJSON(&received))
	assert.Equal(t, "job:update", received.Title)
	assert.Equal(t, "abc", received.Body["token"])
}
