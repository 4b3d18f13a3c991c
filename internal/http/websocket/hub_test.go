package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/hbomb79/Trove/internal/http/websocket"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type echoArgs struct {
	Value string `mapstructure:"value"`
}

func startHub(t *testing.T) (*websocket.SocketHub, *gorilla.Conn) {
	hub := websocket.New()
	hub.WithConnectionCallback(func() map[string]interface{} { return map[string]interface{}{"version": "test"} })
	hub.BindCommand("ECHO", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		var args echoArgs
		if err := message.DecodeArguments(&args); err != nil {
			return err
		}

		hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"value": args.Value}, websocket.Response))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, hub.Run(ctx))
	}()

	server := httptest.NewServer(httpHandler(hub))
	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
	})

	// Wait for the hub loop to be running before dialing
	var conn *gorilla.Conn
	require.Eventually(t, func() bool {
		c, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { conn.Close() })

	return hub, conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) map[string]interface{} {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func Test_Hub_WelcomesClientsWithConnectionPayload(t *testing.T) {
	_, conn := startHub(t)

	welcome := readMessage(t, conn)
	assert.Equal(t, "CONNECTION_ESTABLISHED", welcome["title"])
	assert.EqualValues(t, websocket.Welcome, welcome["type"])

	args := welcome["arguments"].(map[string]interface{})
	assert.Equal(t, "test", args["version"])
	assert.NotEmpty(t, args["client"])
}

func Test_Hub_DispatchesCommandsAndRepliesToOrigin(t *testing.T) {
	_, conn := startHub(t)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "ECHO", "id": 7, "type": websocket.Command, "arguments": map[string]interface{}{"value": "hi"}}))
	reply := readMessage(t, conn)
	assert.Equal(t, "COMMAND_SUCCESS", reply["title"])
	assert.EqualValues(t, 7, reply["id"])
	assert.Equal(t, "hi", reply["arguments"].(map[string]interface{})["value"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "ECHO", "id": 8, "type": websocket.Command, "arguments": map[string]interface{}{"unexpected": true}}))
	failure := readMessage(t, conn)
	assert.Equal(t, "COMMAND_FAILURE", failure["title"])
	assert.EqualValues(t, 8, failure["id"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"title": "NOPE", "id": 9, "type": websocket.Command}))
	unknown := readMessage(t, conn)
	assert.Equal(t, "Unknown command", unknown["arguments"].(map[string]interface{})["error"])
}

func Test_Hub_BroadcastsUpdates(t *testing.T) {
	hub, conn := startHub(t)
	readMessage(t, conn)

	hub.Send(&websocket.SocketMessage{Title: "TRANSFER_UPDATE", Body: map[string]interface{}{"id": "abc"}, Type: websocket.Update})

	update := readMessage(t, conn)
	assert.Equal(t, "TRANSFER_UPDATE", update["title"])
	assert.Equal(t, "abc", update["arguments"].(map[string]interface{})["id"])
}

func httpHandler(hub *websocket.SocketHub) http.HandlerFunc {
	return hub.UpgradeToSocket
}
