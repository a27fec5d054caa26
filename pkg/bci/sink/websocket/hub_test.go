package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/openbci.go/pkg/bci/sink"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), "", srv.URL)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	require.NoError(t, hub.HandleSample(context.Background(), &wire.Sample{PacketID: 1}))

	conns := []*websocket.Conn{dial(t, srv), dial(t, srv)}
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	s := &wire.Sample{PacketID: 42, Channels: []float64{1e-7, 0}, Aux: [wire.AuxCount]int16{4, 5, 6}}
	require.NoError(t, hub.HandleSample(context.Background(), s))
	for _, conn := range conns {
		var data []byte
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, websocket.Message.Receive(conn, &data))
		decoded, _, err := sink.DecodeSample(data)
		require.NoError(t, err)
		require.Equal(t, s, decoded)
	}

	for _, conn := range conns {
		conn.Close()
	}
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub()
	c := &client{ch: make(chan []byte, 2)}
	hub.add(c)
	for n := 0; n < 5; n++ {
		require.NoError(t, hub.HandleSample(context.Background(), &wire.Sample{PacketID: uint8(n)}))
	}
	require.Len(t, c.ch, 2)
	require.EqualValues(t, 3, hub.Dropped())
	hub.remove(c)
	require.Zero(t, hub.Clients())
}

func TestServerRun(t *testing.T) {
	s := &Server{Addr: "127.0.0.1:0", Hub: NewHub()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server didn't stop")
	}
}
