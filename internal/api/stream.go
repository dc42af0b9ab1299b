package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/raffle"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	clientBuffer = 8
)

type streamClient struct {
	address string
	send    chan *raffle.Snapshot
}

// Stream pushes published snapshots to WebSocket clients. It subscribes to
// the bus once and fans out to every client watching the same address.
type Stream struct {
	fetcher  *raffle.Fetcher
	owner    string
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewStream creates a stream fed by bus
func NewStream(bus EventBus.Bus, fetcher *raffle.Fetcher, owner string, logger *zap.Logger) (*Stream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		fetcher: fetcher,
		owner:   owner,
		logger:  logger.Named("stream"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*streamClient]struct{}),
	}
	if err := bus.SubscribeAsync(raffle.TopicSnapshot, s.broadcast, false); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) broadcast(snap *raffle.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if c.address != snap.UserAddress {
			continue
		}
		select {
		case c.send <- snap:
		default:
			// slow client; it catches up on the next snapshot
		}
	}
}

func (s *Stream) register(c *streamClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Stream) unregister(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// HandleWebSocket handles GET /api/raffle/ws
func (s *Stream) HandleWebSocket(c *gin.Context) {
	address := c.Query("address")
	if err := s.fetcher.Watch(address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer s.fetcher.Unwatch(address)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &streamClient{address: address, send: make(chan *raffle.Snapshot, clientBuffer)}
	s.register(client)
	defer s.unregister(client)

	s.logger.Info("websocket connection established",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("address", address))

	// current state first
	if err := s.write(conn, newRaffleView(s.fetcher.State(address), address, s.owner)); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Warn("websocket connection closed unexpectedly", zap.Error(err))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case snap := <-client.send:
			view := newRaffleView(raffle.State{Snapshot: snap}, address, s.owner)
			if err := s.write(conn, view); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Stream) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}
