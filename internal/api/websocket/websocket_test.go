package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
)

func TestHubClientRegistration(t *testing.T) {
	hub := NewHub(context.Background())
	go hub.Run()
	defer hub.Stop()

	assert.Equal(t, 0, hub.GetClientCount())
	client := NewClient(hub.ctx, hub, nil, "c1", nil, nil)
	hub.register <- client
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.BroadcastGeneration(7))
	select {
	case msg := <-client.send:
		assert.JSONEq(t, `{"type":"dataset","generation":7}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}

	hub.unregister <- client
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Error(t, client.ctx.Err(), "unregistered client is closed")
}

func TestClient_DropsFramesWhenBehind(t *testing.T) {
	hub := NewHub(context.Background())
	client := NewClient(hub.ctx, hub, nil, "c1", nil, nil)
	for i := 0; i < sendBuffer+10; i++ {
		client.Send(service.Message{Type: service.MessageFrame, Frame: &engine.Frame{View: "cluster"}})
	}
	assert.Len(t, client.send, sendBuffer)
}

type wsServer struct {
	url      string
	hub      *Hub
	datasets service.DatasetService
}

func newWSServer(t *testing.T, origins []string) *wsServer {
	t.Helper()
	datasets := service.NewDatasetService(nil, nil)
	hub := NewHub(context.Background())
	go hub.Run()
	t.Cleanup(hub.Stop)

	h := NewHandler(hub, datasets, nil, Config{
		AllowedOrigins: origins,
		InputRate:      1000,
		InputBurst:     1000,
		Engine:         engine.Options{TickInterval: time.Millisecond},
	})
	r := mux.NewRouter()
	r.HandleFunc("/ws/views/{view}", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), hub: hub, datasets: datasets}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(service.Message) bool) service.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var m service.Message
		require.NoError(t, json.Unmarshal(data, &m))
		if match(m) {
			return m
		}
	}
}

func TestServeWS_StreamsFramesAndFocus(t *testing.T) {
	s := newWSServer(t, nil)
	s.datasets.Publish(context.Background(), &models.Dataset{
		Pods: []models.Pod{{Namespace: "shop", Name: "web-1", DisplayName: "web-1"}},
	})

	conn, _, err := websocket.DefaultDialer.Dial(s.url+"/ws/views/cluster?namespace=shop", nil)
	require.NoError(t, err)
	defer conn.Close()

	m := readUntil(t, conn, func(m service.Message) bool { return m.Type == service.MessageFrame && len(m.Frame.Items) == 1 })
	assert.Equal(t, "shop/web-1", m.Frame.Items[0].ID)
	assert.Equal(t, 1, s.hub.GetClientCount())

	require.NoError(t, conn.WriteJSON(service.Input{Type: service.InputFocus, Layer: "pods", ID: "shop/web-1"}))
	m = readUntil(t, conn, func(m service.Message) bool { return m.Type == service.MessageFocus })
	assert.Equal(t, models.KindPod, m.Focus.Kind)

	require.NoError(t, conn.WriteJSON(service.Input{Type: "bogus"}))
	m = readUntil(t, conn, func(m service.Message) bool { return m.Type == service.MessageError })
	assert.Contains(t, m.Error, "bogus")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	m = readUntil(t, conn, func(m service.Message) bool { return m.Type == service.MessageError })
	assert.Contains(t, m.Error, "invalid input")

	conn.Close()
	require.Eventually(t, func() bool { return s.hub.GetClientCount() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestServeWS_RejectsUnknownViewAndOrigin(t *testing.T) {
	s := newWSServer(t, []string{"https://ok.example"})

	_, resp, err := websocket.DefaultDialer.Dial(s.url+"/ws/views/nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(s.url+"/ws/views/cluster", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://ok.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"/ws/views/cluster", header)
	require.NoError(t, err)
	conn.Close()
}
