// Package streamserver serves the encoded stream to a single TCP viewer.
//
// The wire protocol is deliberately minimal: the viewer sends one request
// line, the server answers with a fixed RTSP-looking status line and a blank
// line, and from then on the connection carries raw Annex-B access units back
// to back with no framing.
//
// Accept is the only point where Serve blocks. Each accepted connection is
// handshaken on its own goroutine under a deadline, and an attached viewer
// gets one more goroutine that drains and discards its input. Neither ever
// holds up the accept loop or the caller of Deliver.
package streamserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rapidcast/internal/metrics"
	"rapidcast/internal/notify"
	"rapidcast/pkg/models"
)

const (
	// DefaultAddr is where viewers connect unless configured otherwise.
	DefaultAddr = ":8554"

	// HandshakeResponse is written once per viewer, whatever it asked for.
	HandshakeResponse = "RTSP/1.0 200 OK\r\n\r\n"

	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second

	maxRequestLine = 4096
)

// ErrNotListening is returned by Serve before Listen succeeded.
var ErrNotListening = errors.New("stream server is not listening")

// Options configures a Server. Zero values take defaults.
type Options struct {
	SessionID        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           logrus.FieldLogger
	Metrics          *metrics.Metrics
	Notifier         notify.Notifier
}

// Server accepts at most one viewer and relays encoded units to it.
type Server struct {
	addr string
	opts Options
	log  logrus.FieldLogger

	mu       sync.Mutex
	listener net.Listener
	client   *Client
	pending  net.Conn // connection in the middle of its handshake
	closed   bool

	handshakes sync.WaitGroup
	drains     sync.WaitGroup
	closeOnce  sync.Once
	closeErr   error
}

// Client is the attached viewer.
type Client struct {
	id         string
	conn       net.Conn
	attachedAt time.Time

	bytesSent atomic.Uint64
	unitsSent atomic.Uint64
	closeOnce sync.Once
}

// Info snapshots the client's counters.
func (c *Client) Info() models.ClientInfo {
	return models.ClientInfo{
		ID:         c.id,
		RemoteAddr: c.conn.RemoteAddr().String(),
		AttachedAt: c.attachedAt,
		BytesSent:  c.bytesSent.Load(),
		UnitsSent:  c.unitsSent.Load(),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// New creates a stream server for addr. Nothing is bound until Listen.
func New(addr string, opts Options) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Server{
		addr: addr,
		opts: opts,
		log:  logger.WithFields(logrus.Fields{"component": "streamserver", "session": opts.SessionID}),
	}
}

// Listen binds the TCP listener.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("stream server listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts viewers until ctx is cancelled or the server is closed.
// Cancellation closes the listener; the resulting accept error is a clean
// return. Any other accept error is returned.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() { _ = s.stopAccepting() })
	defer stop()
	defer s.handshakes.Wait()

	s.notify(notify.EventAwaitingClient, ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Debug("accept loop stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.reserve(conn) {
			s.log.WithField("remote", conn.RemoteAddr().String()).Info("viewer rejected, already serving one")
			s.opts.Metrics.RecordClientRejected()
			_ = conn.Close()
			continue
		}

		s.handshakes.Add(1)
		go s.handshake(conn)
	}
}

// reserve claims the single viewer slot for conn.
func (s *Server) reserve(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.client != nil || s.pending != nil {
		return false
	}
	s.pending = conn
	return true
}

func (s *Server) handshake(conn net.Conn) {
	defer s.handshakes.Done()

	remote := conn.RemoteAddr().String()
	logger := s.log.WithField("remote", remote)

	r := bufio.NewReaderSize(conn, maxRequestLine)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	line, err := r.ReadSlice('\n')
	if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
		logger.WithError(err).Info("handshake failed")
		s.release(conn)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	logger.WithField("request", string(trimLine(line))).Debug("handshake request")

	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if _, err := io.WriteString(conn, HandshakeResponse); err != nil {
		logger.WithError(err).Info("handshake reply failed")
		s.release(conn)
		return
	}

	c := &Client{id: uuid.NewString(), conn: conn, attachedAt: time.Now()}

	s.mu.Lock()
	if s.closed || s.pending != conn {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.pending = nil
	s.client = c
	s.drains.Add(1)
	s.mu.Unlock()

	go s.drain(c, r)

	s.opts.Metrics.RecordClientAttached()
	logger.WithField("client", c.id).Info("viewer attached")
	s.notify(notify.EventClientConnected, remote)
}

// release gives up the slot held by a connection that failed its handshake.
func (s *Server) release(conn net.Conn) {
	s.mu.Lock()
	if s.pending == conn {
		s.pending = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// drain reads whatever the viewer sends after the handshake. It is logged and
// otherwise ignored; end of input means the viewer went away.
func (s *Server) drain(c *Client, r *bufio.Reader) {
	defer s.drains.Done()

	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.log.WithFields(logrus.Fields{"client": c.id, "bytes": n}).Debug("ignoring viewer input")
		}
		if err != nil {
			s.detach(c, err)
			return
		}
	}
}

// Deliver writes one unit to the attached viewer. It reports whether the unit
// went out; without a viewer the unit is dropped.
func (s *Server) Deliver(unit *models.EncodedUnit) bool {
	if unit == nil || len(unit.Payload) == 0 {
		return false
	}

	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		s.opts.Metrics.RecordUnitDropped("no_client")
		return false
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	n, err := c.conn.Write(unit.Payload)
	if n > 0 {
		c.bytesSent.Add(uint64(n))
		s.opts.Metrics.RecordBytesStreamed(n)
	}
	if err != nil {
		s.opts.Metrics.RecordUnitDropped("write_failed")
		s.detach(c, err)
		return false
	}
	c.unitsSent.Add(1)
	return true
}

// detach drops c if it is still the attached viewer and goes back to
// awaiting a new one.
func (s *Server) detach(c *Client, cause error) {
	s.mu.Lock()
	if s.client != c {
		s.mu.Unlock()
		return
	}
	s.client = nil
	closed := s.closed
	s.mu.Unlock()

	c.close()
	s.opts.Metrics.RecordClientDetached(true)

	info := c.Info()
	s.log.WithFields(logrus.Fields{
		"client": c.id,
		"bytes":  info.BytesSent,
		"units":  info.UnitsSent,
	}).WithError(cause).Info("viewer detached")

	if !closed {
		s.notify(notify.EventAwaitingClient, info.RemoteAddr+" disconnected")
	}
}

// Client returns the attached viewer, if any.
func (s *Server) Client() (models.ClientInfo, bool) {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return models.ClientInfo{}, false
	}
	return c.Info(), true
}

// CloseClient disconnects the attached viewer, if any.
func (s *Server) CloseClient() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	c.close()
	s.opts.Metrics.RecordClientDetached(false)
	s.log.WithField("client", c.id).Info("viewer disconnected")
	return nil
}

// Close stops accepting, drops any viewer and waits for its reader to exit.
// Calling Close more than once is safe.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		_ = s.CloseClient()
		s.closeErr = s.stopAccepting()
		s.drains.Wait()
	})
	return s.closeErr
}

// stopAccepting closes the listener and any connection still handshaking.
func (s *Server) stopAccepting() error {
	s.mu.Lock()
	ln := s.listener
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if pending != nil {
		_ = pending.Close()
	}
	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

func (s *Server) notify(event notify.Event, detail string) {
	s.opts.Notifier.Notify(notify.New(event, s.opts.SessionID, detail))
}

func trimLine(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
