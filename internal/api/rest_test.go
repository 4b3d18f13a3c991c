package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	downloadMocks "github.com/hbomb79/Trove/internal/api/downloads/mocks"
	scanMocks "github.com/hbomb79/Trove/internal/api/scans/mocks"
	sessionMocks "github.com/hbomb79/Trove/internal/api/sessions/mocks"
	"github.com/hbomb79/Trove/internal/download"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/http/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	gateway   *RestGateway
	downloads *downloadMocks.MockService
	sessions  *sessionMocks.MockService
	registry  *prometheus.Registry
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	registry := prometheus.NewRegistry()
	f := &gatewayFixture{
		downloads: downloadMocks.NewMockService(t),
		sessions:  sessionMocks.NewMockService(t),
		registry:  registry,
	}
	f.gateway = NewRestGateway(
		&RestConfig{HostAddr: "127.0.0.1:0"},
		f.downloads,
		downloadMocks.NewMockFileStore(t),
		scanMocks.NewMockService(t),
		f.sessions,
		registry,
	)

	return f
}

func Test_Gateway_ServesMetrics(t *testing.T) {
	f := newGatewayFixture(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "trove_test_total", Help: "test"})
	f.registry.MustRegister(counter)
	counter.Add(3)

	rec := httptest.NewRecorder()
	f.gateway.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "trove_test_total 3")
}

func Test_Gateway_RoutesWithoutTrailingSlash(t *testing.T) {
	f := newGatewayFixture(t)
	f.sessions.EXPECT().CancelSession(mock.Anything, "abc").Return(nil)

	rec := httptest.NewRecorder()
	f.gateway.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/trove/v1/sessions/abc/cancel", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func Test_Gateway_CancelSessionCommand(t *testing.T) {
	f := newGatewayFixture(t)
	f.sessions.EXPECT().CancelSession(mock.Anything, "session-1").Return(nil).Once()

	conn := dialGateway(t, f.gateway)
	readSocketMessage(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(map[string]any{
		"title":     "CANCEL_SESSION",
		"arguments": map[string]any{"sessionId": "session-1"},
		"id":        7,
		"type":      websocket.Command,
	}))

	reply := readSocketMessage(t, conn)
	assert.Equal(t, "COMMAND_SUCCESS", reply["title"])
	assert.EqualValues(t, 7, reply["id"])
}

func Test_Gateway_CancelSessionCommandRejectsBadArguments(t *testing.T) {
	f := newGatewayFixture(t)
	conn := dialGateway(t, f.gateway)
	readSocketMessage(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(map[string]any{
		"title":     "CANCEL_SESSION",
		"arguments": map[string]any{"session": "session-1"},
		"id":        8,
		"type":      websocket.Command,
	}))

	reply := readSocketMessage(t, conn)
	assert.Equal(t, "COMMAND_FAILURE", reply["title"])
}

type recordingSender struct {
	mutex    sync.Mutex
	messages []*websocket.SocketMessage
}

func (sender *recordingSender) Send(message *websocket.SocketMessage) {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	sender.messages = append(sender.messages, message)
}

func Test_Broadcaster_TransferMessages(t *testing.T) {
	id := uuid.New()
	total := int64(200)
	transfer := &download.Transfer{ID: id, TotalBytes: &total, BytesDownloaded: 50}

	service := downloadMocks.NewMockService(t)
	service.EXPECT().Transfer(mock.Anything, id).Return(transfer, nil)
	service.EXPECT().Chunks(mock.Anything, id).Return([]*download.Chunk{{TransferID: id}}, nil).Once()

	sender := &recordingSender{}
	hub := newBroadcaster(sender, service)
	require.NoError(t, hub.BroadcastTransferUpdate(id))
	require.NoError(t, hub.BroadcastTransferProgress(id))

	require.Len(t, sender.messages, 2)
	assert.Equal(t, TITLE_TRANSFER_UPDATE, sender.messages[0].Title)
	update := sender.messages[0].Body["arguments"].(TransferUpdate)
	require.NotNil(t, update.Transfer)
	assert.Len(t, update.Transfer.Chunks, 1)

	assert.Equal(t, TITLE_TRANSFER_PROGRESS, sender.messages[1].Title)
	progress := sender.messages[1].Body["arguments"].(TransferProgressUpdate)
	assert.Equal(t, 25, progress.Percent)
	assert.Equal(t, websocket.Update, sender.messages[1].Type)
}

func Test_Broadcaster_MissingTransfer(t *testing.T) {
	id := uuid.New()
	service := downloadMocks.NewMockService(t)
	service.EXPECT().Transfer(mock.Anything, id).Return(nil, download.ErrTransferNotFound)

	sender := &recordingSender{}
	hub := newBroadcaster(sender, service)
	require.NoError(t, hub.BroadcastTransferUpdate(id))
	assert.True(t, errors.Is(hub.BroadcastTransferProgress(id), download.ErrTransferNotFound))

	require.Len(t, sender.messages, 1)
	assert.Nil(t, sender.messages[0].Body["arguments"].(TransferUpdate).Transfer)
}

func Test_Broadcaster_SessionMessages(t *testing.T) {
	sender := &recordingSender{}
	hub := newBroadcaster(sender, downloadMocks.NewMockService(t))

	require.NoError(t, hub.BroadcastScanProgress(event.ScanProgress{SessionID: "s", Enqueued: 1, Total: 2, State: "running"}))
	require.NoError(t, hub.BroadcastProcessingProgress(event.ProcessingProgress{SessionID: "s", Total: 2, Done: 1}))

	require.NoError(t, hub.BroadcastSessionCancelled("s"))

	require.Len(t, sender.messages, 3)
	assert.Equal(t, TITLE_SCAN_PROGRESS, sender.messages[0].Title)
	assert.Equal(t, TITLE_PROCESSING_PROGRESS, sender.messages[1].Title)
	assert.Equal(t, TITLE_SESSION_CANCELLED, sender.messages[2].Title)
}

func dialGateway(t *testing.T, gateway *RestGateway) *gorilla.Conn {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, gateway.socket.Run(ctx))
	}()

	server := httptest.NewServer(gateway)
	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/trove/v1/activity/ws/"
	var conn *gorilla.Conn
	require.Eventually(t, func() bool {
		c, _, err := gorilla.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readSocketMessage(t *testing.T, conn *gorilla.Conn) map[string]any {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}
