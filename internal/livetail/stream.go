// Package livetail subscribes to a server's live log stream over a
// websocket and turns each pushed payload into a columnar Frame.
//
// A subscription reconnects after any close that is neither a normal
// closure (1000) nor requested by the consumer. Unsubscribe is idempotent
// and cancels a pending reconnect.
package livetail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanodiscover/internal/logging"
)

const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultLimit             = 500
	DefaultRefID             = "A"

	eventBuffer = 64
)

// Conn is one websocket connection. Close must be safe to call
// concurrently with ReadMessage.
type Conn interface {
	WriteMessage(data []byte) error
	// ReadMessage returns a *CloseError when the server sent a close frame.
	ReadMessage() ([]byte, error)
	Close(code int, reason string) error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Metrics receives live-tail measurements.
type Metrics interface {
	Reconnect()
	FrameReceived(rows int)
	StreamError()
}

type nopMetrics struct{}

func (nopMetrics) Reconnect()        {}
func (nopMetrics) FrameReceived(int) {}
func (nopMetrics) StreamError()      {}

// Options configures a Stream.
type Options struct {
	BaseURL           string
	WebsocketURL      string // takes precedence over BaseURL
	TenantID          string
	ReconnectInterval time.Duration
	Dialer            Dialer // defaults to WebsocketDialer{}
	Metrics           Metrics
	Logger            *slog.Logger
	Now               func() time.Time
}

// Query selects what a subscription receives.
type Query struct {
	RefID string
	Query string
	Limit int
}

// Stream creates subscriptions against one server.
type Stream struct {
	opts    Options
	dialer  Dialer
	metrics Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Stream.
func New(opts Options) *Stream {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	s := &Stream{
		opts:    opts,
		dialer:  opts.Dialer,
		metrics: opts.Metrics,
		log:     logging.Default(opts.Logger).With("component", "livetail"),
		now:     opts.Now,
	}
	if s.dialer == nil {
		s.dialer = WebsocketDialer{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Subscribe starts a subscription. It fails with ErrNoURL before any
// connection attempt when no URL can be derived.
func (s *Stream) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if q.RefID == "" {
		q.RefID = DefaultRefID
	}
	u, err := BuildURL(s.opts.WebsocketURL, s.opts.BaseURL, s.opts.TenantID, q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		stream: s,
		query:  q,
		url:    u,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		log:    s.log.With("ref_id", q.RefID),
	}
	go sub.run()
	return sub, nil
}

// Subscription is one live query. Its events channel is closed once the
// subscription reaches StateClosed.
type Subscription struct {
	stream *Stream
	query  Query
	url    string
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}
	log    *slog.Logger

	mu     sync.Mutex
	conn   Conn
	state  State
	closed bool
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan Event { return s.events }

// URL returns the websocket URL the subscription connects to.
func (s *Subscription) URL() string { return s.url }

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe closes the open connection with code 1000, cancels any
// pending reconnect and waits for the subscription to stop.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.cancel()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(CloseNormal, "Client closed"); err != nil {
			s.log.Debug("close on unsubscribe", "error", err)
		}
	}
	<-s.done
}

func (s *Subscription) run() {
	defer close(s.events)
	defer close(s.done)

	for {
		s.setState(StateConnecting)
		code := s.connect()

		if s.stopped() || code == CloseNormal {
			s.setState(StateClosed)
			return
		}

		s.setState(StateReconnecting)
		s.stream.metrics.Reconnect()
		s.log.Warn("live stream closed, reconnecting",
			"code", code, "interval", s.stream.opts.ReconnectInterval)

		timer := time.NewTimer(s.stream.opts.ReconnectInterval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.setState(StateClosed)
			return
		case <-timer.C:
		}
	}
}

// connect runs one connection to completion and returns its close code.
func (s *Subscription) connect() int {
	conn, err := s.stream.dialer.Dial(s.ctx, s.url)
	if err != nil {
		if s.stopped() {
			return CloseNormal
		}
		s.emitError(fmt.Errorf("dial: %w", err))
		return CloseAbnormal
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(CloseNormal, "Client closed")
		return CloseNormal
	}
	s.conn = conn
	s.mu.Unlock()
	stop := make(chan struct{})
	defer func() {
		close(stop)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()
	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.Close(CloseNormal, "Client closed")
		case <-stop:
		}
	}()

	s.setState(StateOpen)
	s.log.Info("live stream connected")

	if err := conn.WriteMessage(s.subscribeFrame()); err != nil {
		if s.stopped() {
			return CloseNormal
		}
		s.emitError(fmt.Errorf("send subscribe: %w", err))
		_ = conn.Close(CloseAbnormal, "")
		return CloseAbnormal
	}

	streaming := false
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			var ce *CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			if s.stopped() {
				return CloseNormal
			}
			s.emitError(fmt.Errorf("read: %w", err))
			return CloseAbnormal
		}

		frame, err := buildFrame(data, s.query.RefID, s.stream.now())
		if err != nil {
			s.emitError(err)
			_ = conn.Close(CloseUnsupportedData, "invalid payload")
			return CloseUnsupportedData
		}
		if !streaming {
			s.setState(StateStreaming)
			streaming = true
		}
		s.stream.metrics.FrameReceived(frame.Len())
		s.emit(Event{Type: EventFrame, Frame: frame})
	}
}

func (s *Subscription) subscribeFrame() []byte {
	limit := s.query.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	var a fastjson.Arena
	o := a.NewObject()
	o.Set("action", a.NewString("subscribe"))
	o.Set("query", a.NewString(s.query.Query))
	o.Set("limit", a.NewNumberInt(limit))
	return o.MarshalTo(nil)
}

func (s *Subscription) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.ctx.Err() != nil
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	if st == StateClosed {
		// The terminal state is reported even after cancellation.
		select {
		case s.events <- Event{Type: EventState, State: st}:
		default:
		}
		return
	}
	s.emit(Event{Type: EventState, State: st})
}

func (s *Subscription) emitError(err error) {
	s.stream.metrics.StreamError()
	s.log.Error("live stream error", "error", err)
	s.emit(Event{Type: EventError, Err: err})
}

func (s *Subscription) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
