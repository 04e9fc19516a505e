package stream

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/walletbase/walletd/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin checks are handled by the API's CORS layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server upgrades HTTP requests and runs one PriceHandler per connection.
type Server struct {
	store PriceStore
	feed  Feed

	mu      sync.Mutex
	nextId  int64
	cancels map[int64]context.CancelFunc
}

func NewServer(store PriceStore, feed Feed) *Server {
	return &Server{store: store, feed: feed, cancels: map[int64]context.CancelFunc{}}
}

// ServeWS upgrades the request. walletIds come from the authenticated
// device; an empty slice streams prices only.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request, walletIds []int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	id := s.track(cancel)
	defer s.untrack(id)

	inbound := make(chan types.StreamMessage)
	go readPump(ctx, conn, inbound)

	handler := NewPriceHandler(s.store, s.feed, &wsSender{conn: conn}, walletIds)
	if err := handler.Run(ctx, inbound); err != nil && err != context.Canceled {
		logger.Debugw("stream connection closed", "err", err)
	}
	cancel()
	conn.Close()
}

// Shutdown cancels every live connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = map[int64]context.CancelFunc{}
}

// track registers a connection's cancel; untrack releases the entry when
// the connection tears down, so closed connections are not retained.
func (s *Server) track(cancel context.CancelFunc) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	s.cancels[s.nextId] = cancel
	return s.nextId
}

func (s *Server) untrack(id int64) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

func readPump(ctx context.Context, conn *websocket.Conn, inbound chan<- types.StreamMessage) {
	defer close(inbound)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := types.DecodeStreamMessage(data)
		if err != nil {
			logger.Debugw("dropping malformed stream message", "err", err)
			continue
		}
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// wsSender serializes frames onto the connection. Only the handler
// goroutine writes, so no lock is needed.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) Send(event types.StreamEvent) error {
	return s.conn.WriteJSON(event)
}
