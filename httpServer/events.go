package httpServer

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rapidcast/internal/notify"
)

const (
	eventQueueSize = 32
	writeWait      = 5 * time.Second
)

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newEventClient(conn *websocket.Conn) *eventClient {
	c := &eventClient{
		conn: conn,
		send: make(chan []byte, eventQueueSize),
	}
	go c.writePump()
	return c
}

func (c *eventClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Broadcaster relays session notifications to websocket subscribers.
// It is a notify.Notifier and never blocks the caller: a subscriber that
// cannot keep up is disconnected.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*eventClient]bool
	closed  bool
	log     logrus.FieldLogger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger logrus.FieldLogger) *Broadcaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broadcaster{
		clients: make(map[*eventClient]bool),
		log:     logger.WithField("component", "events"),
	}
}

// Notify sends n to every subscriber.
func (b *Broadcaster) Notify(n notify.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		b.log.WithError(err).Warn("event marshal failed")
		return
	}

	// send is only closed under the write lock, so the read lock is held
	// for the whole fan-out. Sends never block.
	var slow []*eventClient
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.Info("event subscriber too slow, disconnecting")
		b.remove(c)
	}
}

func (b *Broadcaster) add(conn *websocket.Conn) (*eventClient, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	c := newEventClient(conn)
	b.clients[c] = true
	return c, true
}

func (b *Broadcaster) remove(c *eventClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// ClientCount returns the number of subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Info("websocket upgrade failed")
		return
	}

	client, ok := s.opts.Events.add(conn)
	if !ok {
		_ = conn.Close()
		return
	}
	remote := c.Request.RemoteAddr
	s.log.WithField("remote", remote).Debug("event subscriber connected")

	// Subscribers only listen; reading detects when they go away.
	go func() {
		defer func() {
			s.opts.Events.remove(client)
			s.log.WithField("remote", remote).Debug("event subscriber disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
