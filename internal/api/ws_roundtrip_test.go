package api

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/bookloop/messaging-service/internal/service"
	"github.com/bookloop/messaging-service/internal/ws"
	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketRoundTrip(t *testing.T) {
	st := steppingStore()
	hub := ws.NewHub(nil)
	cmd := service.NewCommandService(st, nil, 4096, nil)
	wsrv := ws.NewServer(hub, cmd, nil, ws.Options{}, nil)
	app := NewServer(Deps{Cmd: cmd, Qry: service.NewQueryService(st, nil), WS: wsrv})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() {
		hub.Close()
		_ = app.Shutdown()
	})

	url := "ws://" + ln.Addr().String() + "/ws"
	alice, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer bob.Close()

	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	frame := `{"type":"sendMessage","data":{"sender":"alice","receiver":"bob","message":"meet at the library?"}}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(frame)))

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, name)

		var out ws.OutboundFrame
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, ws.EventNewMessage, out.Type, name)
		require.NotNil(t, out.Data)
		assert.Equal(t, "meet at the library?", out.Data.Body)
	}
	assert.Equal(t, 1, st.Len())

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"sendMessage","data":{"sender":"bob"}}`)))
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := bob.ReadMessage()
	require.NoError(t, err)
	var out ws.OutboundFrame
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, ws.EventError, out.Type)
	assert.NotEmpty(t, out.Error)
	assert.Equal(t, 1, st.Len())
}
