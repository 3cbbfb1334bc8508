package obsws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"obs-remote/internal/platform/logger"
)

const (
	DefaultRequestTimeout   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateAuthenticating
	StateIdentified
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateAuthenticating:
		return "authenticating"
	case StateIdentified:
		return "identified"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) handshaking() bool {
	return s == StateConnecting || s == StateAwaitingHello || s == StateAuthenticating
}

// Credentials address one remote. IP may include an explicit port.
type Credentials struct {
	IP       string `json:"ip"`
	Password string `json:"password"`
}

// Observer receives request and state notifications, e.g. for metrics.
type Observer interface {
	RequestCompleted(requestType, result string, d time.Duration)
	StateChanged(state string)
}

type nopObserver struct{}

func (nopObserver) RequestCompleted(string, string, time.Duration) {}
func (nopObserver) StateChanged(string)                            {}

// Options configure a Client. Zero values select the defaults.
type Options struct {
	Port             int
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
	Observer         Observer
}

// Client is a single obs-websocket control session. The zero value is not
// usable; construct with NewClient. A Client may be reconnected after
// Disconnect or a failure.
type Client struct {
	opts     Options
	log      *slog.Logger
	observer Observer

	mu    sync.Mutex
	state State
	sess  *session
}

// session is the per-connection part of a Client.
type session struct {
	transport *transport
	pending   *correlator
	password  string
	ready     chan struct{}

	handshake     chan error
	handshakeOnce sync.Once
}

func (s *session) finishHandshake(err error) {
	s.handshakeOnce.Do(func() { s.handshake <- err })
}

// sessionHandler binds read-loop callbacks to the session that started them,
// so a stale loop cannot touch a newer session.
type sessionHandler struct {
	c    *Client
	sess *session
}

func (h sessionHandler) handleFrame(f Frame)    { h.c.handleFrame(h.sess, f) }
func (h sessionHandler) handleClose(err error) { h.c.handleClose(h.sess, err) }

// NewClient returns a disconnected client.
func NewClient(opts Options) *Client {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Client{opts: opts, log: log, observer: observer}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready returns a channel that is closed once the current session is
// identified. It returns nil when there is no session.
func (c *Client) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.ready
}

// PendingCount returns the number of requests awaiting a response.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return 0
	}
	return sess.pending.len()
}

// Connect opens the socket and runs the hello/identify handshake, returning
// once the client is identified. It is a no-op on an identified client and
// fails with ErrConnectInProgress while another handshake is running.
func (c *Client) Connect(ctx context.Context, creds Credentials) error {
	if creds.IP == "" {
		return &ConnectivityError{Op: "connect", Err: errors.New("missing host")}
	}

	c.mu.Lock()
	switch {
	case c.state == StateIdentified:
		c.mu.Unlock()
		return nil
	case c.state.handshaking():
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	sess := &session{
		pending:   newCorrelator(c.observer),
		password:  creds.Password,
		ready:     make(chan struct{}),
		handshake: make(chan error, 1),
	}
	c.sess = sess
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	url := Endpoint(creds.IP, c.opts.Port)
	t, err := dialTransport(ctx, url, c.log)
	if err != nil {
		c.teardown(sess, StateError, err)
		return &ConnectivityError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		t.close()
		return &ConnectivityError{Op: "connect", Err: ErrClosed}
	}
	sess.transport = t
	c.setStateLocked(StateAwaitingHello)
	c.mu.Unlock()

	c.log.Debug("socket open", slog.String("url", url))
	go t.run(sessionHandler{c: c, sess: sess})

	return c.awaitHandshake(ctx, sess)
}

// awaitHandshake waits for the handshake outcome of sess. A handshake that
// finished wins over a context that expired at the same time.
func (c *Client) awaitHandshake(ctx context.Context, sess *session) error {
	select {
	case err := <-sess.handshake:
		return err
	case <-ctx.Done():
		select {
		case err := <-sess.handshake:
			return err
		default:
		}
		c.teardown(sess, StateError, ctx.Err())
		return &ConnectivityError{Op: "handshake", Err: ctx.Err()}
	}
}

// Disconnect closes the connection from any state and rejects every pending
// request with a ConnectivityError.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sess.finishHandshake(&ConnectivityError{Op: "connect", Err: ErrClosed})
	c.teardown(sess, StateDisconnected, ErrClosed)
	return nil
}

// SendRequest issues requestType with the default timeout and waits for the
// matching response.
func (c *Client) SendRequest(ctx context.Context, requestType string, params any) (json.RawMessage, error) {
	return c.SendRequestWithTimeout(ctx, requestType, params, c.opts.RequestTimeout)
}

// SendRequestWithTimeout issues requestType and waits for the response with
// the same request id. It returns the responseData on success, a
// *RemoteRejectionError when the remote reports failure, a
// *RequestTimeoutError when nothing arrives within timeout, and a
// *ConnectivityError when the connection goes away first.
func (c *Client) SendRequestWithTimeout(ctx context.Context, requestType string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	sess := c.sess
	if c.state != StateIdentified || sess == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	t := sess.transport
	c.mu.Unlock()

	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}

	p, err := sess.pending.register(requestType, timeout)
	if err != nil {
		return nil, err
	}

	if err := t.send(Request{RequestType: requestType, RequestID: p.id, RequestData: params}); err != nil {
		sess.pending.cancel(p.id, &ConnectivityError{Op: requestType, Err: err})
		out := <-p.done
		return nil, out.err
	}

	select {
	case out := <-p.done:
		return out.data, out.err
	case <-ctx.Done():
		sess.pending.cancel(p.id, ctx.Err())
		out := <-p.done
		return out.data, out.err
	}
}

func (c *Client) handleFrame(sess *session, f Frame) {
	switch f := f.(type) {
	case Hello:
		c.onHello(sess, f)
	case Identified:
		c.onIdentified(sess, f)
	case RequestResponse:
		if !sess.pending.resolve(f) {
			c.log.Debug("response without pending request",
				slog.String("request_type", f.RequestType),
				slog.String("request_id", f.RequestID))
		}
	case Event:
		c.log.Debug("event ignored", slog.String("event_type", f.EventType))
	}
}

func (c *Client) onHello(sess *session, h Hello) {
	c.mu.Lock()
	if c.sess != sess || c.state != StateAwaitingHello {
		state := c.state
		c.mu.Unlock()
		c.log.Warn("unexpected hello", slog.String("state", state.String()))
		return
	}
	password := sess.password
	sess.password = ""
	t := sess.transport
	c.setStateLocked(StateAuthenticating)
	c.mu.Unlock()

	noEvents := 0
	identify := Identify{RPCVersion: RPCVersion, EventSubscriptions: &noEvents}
	if h.Authentication != nil {
		token, err := Authenticate(password, h.Authentication.Salt, h.Authentication.Challenge)
		if err != nil {
			sess.finishHandshake(&AuthenticationError{Reason: "unusable challenge", Err: err})
			c.teardown(sess, StateError, err)
			return
		}
		identify.Authentication = token
	}

	c.log.Debug("hello received",
		slog.String("obs_websocket_version", h.OBSWebSocketVersion),
		slog.Int("rpc_version", h.RPCVersion),
		slog.Bool("authentication", h.Authentication != nil))

	if err := t.send(identify); err != nil {
		sess.finishHandshake(&ConnectivityError{Op: "identify", Err: err})
		c.teardown(sess, StateError, err)
	}
}

func (c *Client) onIdentified(sess *session, id Identified) {
	c.mu.Lock()
	if c.sess != sess || c.state != StateAuthenticating {
		state := c.state
		c.mu.Unlock()
		c.log.Warn("unexpected identified", slog.String("state", state.String()))
		return
	}
	c.setStateLocked(StateIdentified)
	close(sess.ready)
	c.mu.Unlock()

	c.log.Info("identified", slog.Int("rpc_version", id.NegotiatedRPCVersion))
	sess.finishHandshake(nil)
}

func (c *Client) handleClose(sess *session, err error) {
	state := StateDisconnected
	if !cleanClose(err) {
		state = StateError
	}
	if closeStatus(err) == CloseAuthenticationFailed {
		sess.finishHandshake(&AuthenticationError{Reason: "rejected by remote", Err: err})
	} else {
		sess.finishHandshake(&ConnectivityError{Op: "handshake", Err: err})
	}
	c.teardown(sess, state, err)
}

// teardown detaches sess, moves to state, rejects everything pending with
// cause and closes the socket. It is a no-op for a session already detached.
func (c *Client) teardown(sess *session, state State, cause error) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	sess.password = ""
	t := sess.transport
	c.setStateLocked(state)
	c.mu.Unlock()

	n := sess.pending.rejectAll(cause)
	if t != nil {
		t.close()
	}

	attrs := []any{slog.String("state", state.String()), slog.Int("rejected", n)}
	if cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	if state == StateError {
		c.log.Warn("connection lost", attrs...)
	} else {
		c.log.Info("connection closed", attrs...)
	}
}

// setStateLocked records a transition. Caller must hold c.mu.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("state change", slog.String("from", c.state.String()), slog.String("to", s.String()))
	c.state = s
	c.observer.StateChanged(s.String())
}
