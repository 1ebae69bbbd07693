// Package transport owns the realtime websocket: it builds the handshake,
// dials, confirms the connection from the server's first health.check,
// pumps frames to a Sink and reconnects with backoff.
//
// Retry policy lives here and only here. The transport reports what
// happened; it never interprets events beyond confirming the connection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/clk-66/spectrus-realtime/internal/auth"
	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/connection"
	"github.com/clk-66/spectrus-realtime/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	healthPeriod   = 25 * time.Second
	maxMessageSize = 1 << 20
	tokenLeeway    = 5 * time.Second

	codeTokenExpired = 40
)

var ErrMalformedURL = errors.New("malformed connect url")

// Sink receives what the transport observes, in order, from the
// transport's goroutine.
type Sink interface {
	OnState(state connection.State)
	OnFrame(data []byte)
}

type Options struct {
	WSURL  string
	APIKey string
	User   chat.User
	Tokens auth.TokenProvider
	// OnRefresh is called when a token refresh cycle starts, before the
	// provider is asked for a new token.
	OnRefresh func()

	BaseDelay time.Duration
	MaxDelay  time.Duration
	Dialer    *websocket.Dialer
	Log       *slog.Logger
}

// ServerError is an error envelope the server sent instead of confirming.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

type Transport struct {
	opts Options
	sink Sink
	log  *slog.Logger

	mu           sync.Mutex
	writeMu      sync.Mutex // serialises all conn writes
	conn         *websocket.Conn
	connectionID string
	status       connection.Status
	token        string
	forceRefresh bool
}

func New(opts Options, sink Sink) *Transport {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Transport{opts: opts, sink: sink, log: opts.Log, status: connection.StatusDisconnected}
}

// ConnectURL builds the handshake URL for user authenticated by token.
func ConnectURL(wsURL, apiKey string, user chat.User, token string) (string, error) {
	if apiKey == "" || user.ID == "" {
		return "", fmt.Errorf("%w: api key and user id are required", ErrMalformedURL)
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not a websocket url", ErrMalformedURL, wsURL)
	}

	payload, err := json.Marshal(map[string]any{
		"user_id":                         user.ID,
		"user_details":                    user,
		"server_determines_connection_id": true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	u = u.JoinPath("connect")
	q := u.Query()
	q.Set("json", string(payload))
	q.Set("api_key", apiKey)
	q.Set("authorization", token)
	q.Set("stream-auth-type", "jwt")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Token returns the token of the current or last connection.
func (t *Transport) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

// ConnectionID returns the id the server assigned, or "" when not connected.
func (t *Transport) ConnectionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectionID
}

// Run connects and keeps the connection alive until ctx ends. It returns
// nil on cancellation and an error only for a handshake URL that can never
// succeed.
func (t *Transport) Run(ctx context.Context) error {
	defer t.report(connection.Disconnected())

	delay := t.opts.BaseDelay
	for ctx.Err() == nil {
		t.report(connection.Connecting())

		attempt := ulid.Make().String()
		conn, err := t.connect(ctx, attempt)
		if errors.Is(err, ErrMalformedURL) {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.log.Warn("ws connect failed", "attempt", attempt, "err", err, "retry_in", delay)
			t.report(connection.Disconnected())
			if !sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, t.opts.MaxDelay)
			continue
		}
		delay = t.opts.BaseDelay

		err = t.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		t.log.Warn("ws connection dropped", "attempt", attempt, "err", err)
		t.report(connection.Reconnecting())
	}
	return nil
}

// connect dials and waits for the confirming health.check. On success the
// connected state and the confirming frame have been delivered to the sink.
func (t *Transport) connect(ctx context.Context, attempt string) (*websocket.Conn, error) {
	token, err := t.currentToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	endpoint, err := ConnectURL(t.opts.WSURL, t.opts.APIKey, t.opts.User, token)
	if err != nil {
		return nil, err
	}

	t.log.Debug("ws dialing", "attempt", attempt, "user_id", t.opts.User.ID)
	conn, _, err := t.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))

	_, first, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, err
	}
	ev, err := confirm(first)
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) && serverErr.Code == codeTokenExpired {
			t.mu.Lock()
			t.forceRefresh = true
			t.mu.Unlock()
		}
		conn.Close()
		return nil, err
	}

	t.mu.Lock()
	t.conn = conn
	t.connectionID = ev.ConnectionID
	t.mu.Unlock()

	t.log.Info("ws connected", "attempt", attempt, "user_id", ev.Me.ID, "connection_id", ev.ConnectionID)
	t.report(connection.Connected(ev.Me, ev.ConnectionID))
	t.sink.OnFrame(first)
	return conn, nil
}

// confirm checks that the first frame is a health.check carrying the
// session user.
func confirm(data []byte) (*events.HealthCheckEvent, error) {
	if code := gjson.GetBytes(data, "error.code"); code.Exists() {
		return nil, &ServerError{Code: int(code.Int()), Message: gjson.GetBytes(data, "error.message").String()}
	}
	ev, err := events.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("first frame: %w", err)
	}
	hc, ok := ev.(*events.HealthCheckEvent)
	if !ok {
		return nil, fmt.Errorf("first frame: expected health.check with me, got %s", ev.Kind())
	}
	return hc, nil
}

// serve pumps frames until the connection fails or ctx ends.
func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		conn.Close()
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
			t.connectionID = ""
		}
		t.mu.Unlock()
	}()

	go func() {
		<-connCtx.Done()
		// Unblocks ReadMessage on shutdown.
		conn.Close()
	}()
	go t.keepAlive(connCtx, conn)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		t.sink.OnFrame(data)
	}
}

// keepAlive sends websocket pings and application health checks.
func (t *Transport) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ping := time.NewTicker(pingPeriod)
	health := time.NewTicker(healthPeriod)
	defer ping.Stop()
	defer health.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			err = t.write(conn, websocket.PingMessage, nil)
		case <-health.C:
			msg, _ := json.Marshal(map[string]string{
				"type":      string(events.KindHealthCheck),
				"client_id": t.ConnectionID(),
			})
			err = t.write(conn, websocket.TextMessage, msg)
		}
		if err != nil {
			return
		}
	}
}

func (t *Transport) write(conn *websocket.Conn, messageType int, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, data)
}

// currentToken returns the token to dial with, running a refresh cycle when
// there is none yet, it is about to expire, or the server rejected it.
func (t *Transport) currentToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	token, force := t.token, t.forceRefresh
	t.mu.Unlock()

	if token != "" && !force {
		// Opaque tokens carry no expiry and are kept until rejected.
		expired, err := auth.Expired(token, time.Now(), tokenLeeway)
		if err != nil || !expired {
			return token, nil
		}
	}

	// The very first token is not a refresh; nothing is queued behind it.
	if token != "" && t.opts.OnRefresh != nil {
		t.opts.OnRefresh()
	}
	if t.opts.Tokens == nil {
		return "", errors.New("no token provider")
	}
	fresh, err := t.opts.Tokens(ctx)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	t.token = fresh
	t.forceRefresh = false
	t.mu.Unlock()
	return fresh, nil
}

// report forwards a state change, skipping repeats.
func (t *Transport) report(state connection.State) {
	t.mu.Lock()
	if t.status == state.Status {
		t.mu.Unlock()
		return
	}
	t.status = state.Status
	t.mu.Unlock()
	t.sink.OnState(state)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
