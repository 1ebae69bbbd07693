// Package client wires the realtime event layer together: transport,
// connection machine, dispatcher, watch registry and recovery.
//
// Everything the transport reports is funnelled through one inbox and
// handled on the Run goroutine, so state transitions, bookkeeping and
// subscriber callbacks happen strictly in arrival order.
package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clk-66/spectrus-realtime/internal/api"
	"github.com/clk-66/spectrus-realtime/internal/auth"
	"github.com/clk-66/spectrus-realtime/internal/channels"
	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/connection"
	"github.com/clk-66/spectrus-realtime/internal/dispatch"
	"github.com/clk-66/spectrus-realtime/internal/events"
	"github.com/clk-66/spectrus-realtime/internal/recovery"
	"github.com/clk-66/spectrus-realtime/internal/registry"
	"github.com/clk-66/spectrus-realtime/internal/session"
	"github.com/clk-66/spectrus-realtime/internal/transport"
)

var ErrNotConnected = errors.New("not connected")

type Options struct {
	APIKey string
	WSURL  string
	APIURL string
	User   chat.User
	Tokens auth.TokenProvider

	RecoveryBatchSize int
	DedupWindow       time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration

	Log *slog.Logger
}

// report is one transport observation queued for the event loop.
type report struct {
	state *connection.State
	frame []byte
}

type subscriber struct {
	id int
	fn func(events.Event)
}

type Client struct {
	log        *slog.Logger
	session    *session.Session
	store      *channels.Service
	registry   *registry.Registry
	api        *api.Client
	recovery   *recovery.Protocol
	machine    *connection.Machine
	dispatcher *dispatch.Dispatcher
	transport  *transport.Transport

	inbox chan report

	subMu   sync.RWMutex
	subs    []subscriber
	nextSub int

	runMu   sync.Mutex
	stop    context.CancelFunc // nil while no transport is running
	stopped chan struct{}
}

// New builds a client whose channel bookkeeping lives in database.
func New(opts Options, database *sql.DB) *Client {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		log:     log,
		session: session.New(),
		store:   channels.NewService(database),
		inbox:   make(chan report, 256),
	}
	c.registry = registry.New(c.store, log)
	c.api = api.NewClient(opts.APIURL, api.Credentials{
		APIKey:       opts.APIKey,
		Token:        func() string { return c.transport.Token() },
		ConnectionID: c.session.ConnectionID,
	})
	c.recovery = recovery.New(c.registry, c.api, opts.RecoveryBatchSize, log)
	c.machine = connection.NewMachine(c.session, c.recovery, c.api.Gate(), log)
	c.dispatcher = dispatch.New(c.session, c.machine, c.registry, c.store, c.publish, dispatch.Options{
		DedupWindow: opts.DedupWindow,
		Log:         log,
	})
	c.transport = transport.New(transport.Options{
		WSURL:     opts.WSURL,
		APIKey:    opts.APIKey,
		User:      opts.User,
		Tokens:    opts.Tokens,
		OnRefresh: c.beginRefresh,
		BaseDelay: opts.ReconnectBase,
		MaxDelay:  opts.ReconnectMax,
		Log:       log,
	}, sink{c})
	return c
}

// sink queues transport observations for the event loop.
type sink struct{ c *Client }

func (s sink) OnState(state connection.State) { s.c.inbox <- report{state: &state} }
func (s sink) OnFrame(data []byte) { s.c.inbox <- report{frame: data} }

// beginRefresh holds outbound queries until the next connection is
// established with the new token.
func (c *Client) beginRefresh() {
	c.api.Gate().Hold()
	c.machine.MarkRefreshPending()
}

// Run connects and handles transport reports until ctx ends, then
// disconnects and returns once the final state has been published. Call
// once.
func (c *Client) Run(ctx context.Context) error {
	loopCtx, cancelLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		cancelLoop()
		c.recovery.Wait()
		c.dispatcher.Close()
	}()

	c.Connect(ctx)
	for {
		select {
		case r := <-c.inbox:
			c.handle(loopCtx, r)
		case <-ctx.Done():
			c.drain(loopCtx)
			return nil
		}
	}
}

// drain disconnects while still handling reports, so the transport never
// blocks on a full inbox.
func (c *Client) drain(ctx context.Context) {
	exited := make(chan struct{})
	go func() {
		c.Disconnect()
		close(exited)
	}()
	for {
		select {
		case r := <-c.inbox:
			c.handle(ctx, r)
		case <-exited:
			for {
				select {
				case r := <-c.inbox:
					c.handle(ctx, r)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, r report) {
	if r.state != nil {
		c.dispatcher.HandleConnection(ctx, *r.state)
		return
	}
	// Decode failures are logged by the dispatcher.
	c.dispatcher.HandleFrame(ctx, r.frame) //nolint:errcheck
}

// Connect starts the transport if it is not already running. Reports are
// only handled while Run is active.
func (c *Client) Connect(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stop != nil {
		return
	}

	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stop, c.stopped = cancel, done

	go func() {
		defer close(done)
		if err := c.transport.Run(tctx); err != nil {
			c.log.Error("transport stopped", "err", err)
		}
		c.runMu.Lock()
		if c.stopped == done {
			c.stop, c.stopped = nil, nil
		}
		c.runMu.Unlock()
		cancel()
	}()
}

// Disconnect stops the transport and waits until it has reported
// disconnected.
func (c *Client) Disconnect() {
	c.runMu.Lock()
	cancel, done := c.stop, c.stopped
	c.stop, c.stopped = nil, nil
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Subscribe registers fn for every published event. Callbacks run on the
// event loop and must not block. The returned func unsubscribes.
func (c *Client) Subscribe(fn func(events.Event)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) publish(ev events.Event) {
	c.subMu.RLock()
	subs := append([]subscriber(nil), c.subs...)
	c.subMu.RUnlock()
	for _, s := range subs {
		s.fn(ev)
	}
}

// OnConnectionState registers fn to be called once per connection state
// transition, on the event loop.
func (c *Client) OnConnectionState(fn func(from, to connection.State)) {
	c.machine.OnChange(fn)
}

// Watch subscribes the current connection to cid and registers it for
// recovery. The returned handle is passed to StopWatching.
func (c *Client) Watch(ctx context.Context, cid chat.ChannelID) (registry.Handle, error) {
	if c.machine.State().Status != connection.StatusConnected {
		return "", ErrNotConnected
	}

	resp, err := c.api.QueryChannels(ctx, api.WatchQuery([]chat.ChannelID{cid}))
	if err != nil {
		return "", fmt.Errorf("watch %s: %w", cid, err)
	}
	h, err := c.store.Attach(ctx, cid)
	if err != nil {
		return "", fmt.Errorf("watch %s: %w", cid, err)
	}
	for _, st := range resp.Channels {
		if st.Channel.CID != cid {
			continue
		}
		if err := c.store.Upsert(ctx, st.Channel); err != nil {
			c.log.Warn("channel upsert failed", "cid", cid.String(), "err", err)
		}
		if st.WatcherCount > 0 {
			c.store.SetWatcherCount(ctx, cid, st.WatcherCount) //nolint:errcheck
		}
	}
	c.registry.Watch(cid, h)
	c.log.Info("watching channel", "cid", cid.String(), "handle", string(h))
	return h, nil
}

// StopWatching releases h. When it was the last handle on cid and the
// client is connected, the server is told to stop pushing cid's events.
func (c *Client) StopWatching(ctx context.Context, cid chat.ChannelID, h registry.Handle) error {
	if empty := c.registry.Unwatch(cid, h); empty && c.machine.State().Status == connection.StatusConnected {
		if err := c.api.StopWatching(ctx, cid); err != nil {
			c.log.Warn("stop watching failed", "cid", cid.String(), "err", err)
		}
	}
	return c.store.Release(ctx, h)
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	return c.machine.State()
}

// CurrentUser returns the signed-in user, or nil before the first
// connection.
func (c *Client) CurrentUser() *chat.User {
	return c.session.CurrentUser()
}

func (c *Client) Unread() chat.UnreadCount {
	return c.session.Unread()
}

// Channels returns the cached state of every watched channel, ordered by
// cid.
func (c *Client) Channels(ctx context.Context) ([]channels.State, error) {
	all, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]channels.State, 0, len(all))
	for _, st := range all {
		if c.registry.Has(st.CID) {
			out = append(out, st)
		}
	}
	return out, nil
}

// WatchedChannels returns how many distinct channels are registered for
// recovery.
func (c *Client) WatchedChannels() int {
	return c.registry.Len()
}

// RequestsHeld reports whether outbound queries are waiting for a token
// refresh to finish.
func (c *Client) RequestsHeld() bool {
	return c.api.Gate().Held()
}
