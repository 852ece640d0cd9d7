// Package session owns the lifecycle of a screen casting session: it
// acquires capture, encoder and listener in order, runs the accept and
// encode-forward loops, and tears everything down again.
package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rapidcast/internal/auth"
	"rapidcast/internal/capture"
	"rapidcast/internal/encoder"
	"rapidcast/internal/metrics"
	"rapidcast/internal/notify"
	"rapidcast/internal/streamserver"
	"rapidcast/pkg/models"
)

// Authorizer checks a capture authorization token.
type Authorizer interface {
	Authorize(token string) error
}

// Options wires a Controller to its collaborators.
type Options struct {
	Source     capture.Source
	NewEncoder encoder.Factory
	Authorizer Authorizer // nil accepts any non-empty token

	Addr             string // stream listener, default :8554
	PollTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger
}

// Controller runs at most one session at a time.
type Controller struct {
	opts Options
	log  logrus.FieldLogger

	mu    sync.Mutex // serializes Start, Stop and failure teardown
	run   *run
	state atomic.Value // models.SessionState
}

// run is everything one Active session holds.
type run struct {
	id        string
	cfg       models.CaptureConfig
	enc       encoder.Encoder
	binding   capture.Binding
	server    *streamserver.Server
	startedAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Addr == "" {
		opts.Addr = streamserver.DefaultAddr
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = encoder.DefaultPollTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Controller{
		opts: opts,
		log:  logger.WithField("component", "session"),
	}
	c.state.Store(models.SessionStateIdle)
	return c
}

// State returns the current state without locking.
func (c *Controller) State() models.SessionState {
	return c.state.Load().(models.SessionState)
}

// IsStreaming reports whether a session is Active.
func (c *Controller) IsStreaming() bool {
	return c.State() == models.SessionStateActive
}

func (c *Controller) setState(s models.SessionState) {
	c.state.Store(s)
}

// Start acquires authorization, encoder, capture binding and listener, in
// that order, and starts streaming. On failure everything acquired so far is
// released and a *StartError is returned.
func (c *Controller) Start(cfg models.CaptureConfig, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != models.SessionStateIdle {
		c.opts.Metrics.RecordStartFailure(reason(ErrAlreadyRunning))
		return &StartError{Kind: ErrAlreadyRunning}
	}
	c.setState(models.SessionStateStarting)

	r := &run{id: uuid.NewString(), cfg: cfg.Normalize()}
	logger := c.log.WithField("session", r.id)
	logger.WithField("size", r.cfg.Resolution()).Info("starting session")

	if err := c.authorize(token); err != nil {
		return c.abort(r, ErrCaptureUnavailable, err)
	}

	if err := r.cfg.Validate(); err != nil {
		return c.abort(r, ErrEncoderInitFailed, err)
	}
	if c.opts.NewEncoder == nil {
		return c.abort(r, ErrEncoderInitFailed, errors.New("no encoder configured"))
	}
	enc, err := c.opts.NewEncoder(r.cfg)
	if err != nil {
		return c.abort(r, ErrEncoderInitFailed, err)
	}
	r.enc = enc

	if c.opts.Source == nil {
		return c.abort(r, ErrCaptureUnavailable, errors.New("no capture source configured"))
	}
	binding, err := c.opts.Source.Bind(enc.Surface(), r.cfg)
	if err != nil {
		return c.abort(r, ErrCaptureUnavailable, err)
	}
	r.binding = binding

	srv := streamserver.New(c.opts.Addr, streamserver.Options{
		SessionID:        r.id,
		HandshakeTimeout: c.opts.HandshakeTimeout,
		WriteTimeout:     c.opts.WriteTimeout,
		Logger:           c.opts.Logger,
		Metrics:          c.opts.Metrics,
		Notifier:         c.opts.Notifier,
	})
	if err := srv.Listen(); err != nil {
		return c.abort(r, ErrListenFailed, err)
	}
	r.server = srv

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.startedAt = time.Now()
	c.run = r
	c.setState(models.SessionStateActive)

	r.wg.Add(2)
	go c.acceptLoop(ctx, r)
	go c.encodeLoop(ctx, r)

	c.opts.Metrics.RecordSessionStart()
	addr := srv.Addr().String()
	logger.WithField("addr", addr).Info("session active")
	c.opts.Notifier.Notify(notify.New(notify.EventServerStarted, r.id, addr))
	return nil
}

func (c *Controller) authorize(token string) error {
	if c.opts.Authorizer != nil {
		return c.opts.Authorizer.Authorize(token)
	}
	if token == "" {
		return auth.ErrMissingToken
	}
	return nil
}

// abort rolls back a failed Start. Called with c.mu held.
func (c *Controller) abort(r *run, kind, cause error) error {
	c.setState(models.SessionStateFailed)

	logger := c.log.WithField("session", r.id)
	logger.WithError(cause).WithField("kind", kind.Error()).Warn("session start failed")
	if err := c.release(r); err != nil {
		logger.WithError(err).Warn("rollback incomplete")
	}

	c.opts.Metrics.RecordStartFailure(reason(kind))
	c.setState(models.SessionStateIdle)
	return &StartError{Kind: kind, Err: cause}
}

// Stop tears down the running session. It is a no-op when idle and never
// fails; release errors are logged.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.run
	if r == nil {
		return
	}
	c.teardown(r, nil)
}

// fail is the asynchronous teardown after a fatal pipeline error. Reports
// about a session that is already gone are ignored.
func (c *Controller) fail(r *run, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != r {
		return
	}
	c.teardown(r, cause)
}

// teardown cancels both loops, waits for them, then releases resources.
// A non-nil cause marks the session as failed. Called with c.mu held.
func (c *Controller) teardown(r *run, cause error) {
	failed := cause != nil
	logger := c.log.WithField("session", r.id)
	if failed {
		c.setState(models.SessionStateFailed)
		logger.WithError(cause).Error("session failed")
	} else {
		c.setState(models.SessionStateStopping)
		logger.Info("stopping session")
	}

	r.cancel()
	r.wg.Wait()

	if err := c.release(r); err != nil {
		logger.WithError(err).Warn("release incomplete")
	}

	c.run = nil
	duration := time.Since(r.startedAt)
	c.opts.Metrics.RecordSessionStop(duration.Seconds(), failed)
	c.setState(models.SessionStateIdle)

	if failed {
		c.opts.Notifier.Notify(notify.New(notify.EventSessionFailed, r.id, cause.Error()))
		return
	}
	logger.WithField("duration", duration.Round(time.Millisecond).String()).Info("session stopped")
	c.opts.Notifier.Notify(notify.New(notify.EventSessionStopped, r.id, ""))
}

// release frees whatever r holds: client, listener, encoder, capture binding.
// Every step runs even if an earlier one fails.
func (c *Controller) release(r *run) error {
	var result *multierror.Error

	if r.server != nil {
		if err := r.server.CloseClient(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close client"))
		}
		if err := r.server.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close listener"))
		}
	}
	if r.enc != nil {
		if err := r.enc.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close encoder"))
		}
	}
	if r.binding != nil {
		if err := r.binding.Release(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "release capture"))
		}
	}

	return result.ErrorOrNil()
}

func (c *Controller) acceptLoop(ctx context.Context, r *run) {
	defer r.wg.Done()

	if err := r.server.Serve(ctx); err != nil && ctx.Err() == nil {
		go c.fail(r, errors.Wrap(err, "stream server"))
	}
}

// encodeLoop forwards encoder output to the viewer. Units produced while no
// viewer is attached are dropped.
func (c *Controller) encodeLoop(ctx context.Context, r *run) {
	defer r.wg.Done()

	for ctx.Err() == nil {
		unit, err := r.enc.Poll(c.opts.PollTimeout)
		if err != nil {
			if ctx.Err() == nil {
				go c.fail(r, err)
			}
			return
		}
		if unit == nil {
			continue
		}
		c.opts.Metrics.RecordUnit(unit.Size(), unit.IsKeyFrame)
		r.server.Deliver(unit)
	}
}

// Info returns a snapshot of the current session.
func (c *Controller) Info() models.SessionInfo {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	state := c.State()
	info := models.SessionInfo{
		State:     state,
		Streaming: state == models.SessionStateActive,
	}
	if r == nil {
		return info
	}

	cfg := r.cfg
	info.ID = r.id
	info.Config = &cfg
	info.StartedAt = r.startedAt.Format(time.RFC3339)
	info.Uptime = int(time.Since(r.startedAt).Seconds())
	if addr := r.server.Addr(); addr != nil {
		info.ListenAddr = addr.String()
	}
	if client, ok := r.server.Client(); ok {
		info.Client = &client
	}
	return info
}

// ListenAddr returns the stream listener address of the running session.
func (c *Controller) ListenAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return nil
	}
	return c.run.server.Addr()
}
