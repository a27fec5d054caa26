// Package websocket serves live samples to websocket clients.
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/openbci.go/pkg/bci/sink"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
	fx "github.com/robotalks/openbci.go/pkg/framework"
)

// DefaultQueueSize is the number of samples buffered per client.
const DefaultQueueSize = 256

// Hub broadcasts encoded samples to connected clients as binary messages.
// A client which can't keep up loses samples instead of blocking others.
type Hub struct {
	QueueSize int
	Now       func() time.Time

	lock    sync.RWMutex
	clients map[*client]struct{}
	dropped uint64
}

type client struct {
	conn *websocket.Conn
	ch   chan []byte
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{QueueSize: DefaultQueueSize, Now: time.Now}
}

// Handler returns the HTTP handler accepting websocket clients.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of samples dropped for slow clients.
func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

// HandleSample implements wire.SampleHandler.
func (h *Hub) HandleSample(ctx context.Context, s *wire.Sample) error {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if len(h.clients) == 0 {
		return nil
	}
	data, err := sink.EncodeSample(s, h.Now())
	if err != nil {
		return err
	}
	for c := range h.clients {
		select {
		case c.ch <- data:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
	return nil
}

func (h *Hub) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	size := h.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	c := &client{conn: conn, ch: make(chan []byte, size)}
	h.add(c)
	defer h.remove(c)

	glog.V(2).Infof("websocket client %s connected", conn.Request().RemoteAddr)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		var discard []byte
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-closed:
			glog.V(2).Infof("websocket client %s disconnected", conn.Request().RemoteAddr)
			return
		case data := <-c.ch:
			if err := websocket.Message.Send(conn, data); err != nil {
				glog.V(2).Infof("websocket client %s: %v", conn.Request().RemoteAddr, err)
				return
			}
		}
	}
}

func (h *Hub) add(c *client) {
	h.lock.Lock()
	if h.clients == nil {
		h.clients = make(map[*client]struct{})
	}
	h.clients[c] = struct{}{}
	h.lock.Unlock()
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
}

// Server serves a Hub on a listen address.
type Server struct {
	Addr string
	Hub  *Hub
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/samples", s.Hub.Handler())
	srv := &http.Server{Handler: mux}
	glog.Infof("websocket monitor on %s/samples", ln.Addr())
	return fx.RunWithContextCloser(ctx, srv, func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
