// Package dispatch decides, per decoded event, whether it reaches
// subscribers and applies the local bookkeeping it implies first.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/clk-66/spectrus-realtime/internal/channels"
	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/connection"
	"github.com/clk-66/spectrus-realtime/internal/events"
	"github.com/clk-66/spectrus-realtime/internal/registry"
	"github.com/clk-66/spectrus-realtime/internal/session"
)

// ChannelStore is the per-channel bookkeeping the dispatcher maintains.
type ChannelStore interface {
	Get(ctx context.Context, cid chat.ChannelID) (*channels.State, error)
	Upsert(ctx context.Context, ch chat.Channel) error
	SetWatcherCount(ctx context.Context, cid chat.ChannelID, n int) error
	SetUnread(ctx context.Context, cid chat.ChannelID, n int) error
	ResetUnread(ctx context.Context, cid chat.ChannelID) error
	ResetAllUnread(ctx context.Context) error
	Ban(ctx context.Context, cid chat.ChannelID, b channels.Ban) error
	Unban(ctx context.Context, cid chat.ChannelID, userID string) (bool, error)
}

// Publisher receives every event that is not suppressed.
type Publisher func(events.Event)

type Options struct {
	// DedupWindow suppresses a message.new whose id was already published
	// within the window. Zero disables it.
	DedupWindow time.Duration
	Now         func() time.Time
	Log         *slog.Logger
}

// Dispatcher runs on the client's event loop; Handle is not meant to be
// called concurrently.
type Dispatcher struct {
	session  *session.Session
	machine  *connection.Machine
	registry *registry.Registry
	store    ChannelStore
	publish  Publisher
	seen     *ttlcache.Cache[string, struct{}]
	now      func() time.Time
	log      *slog.Logger
}

func New(sess *session.Session, machine *connection.Machine, reg *registry.Registry, store ChannelStore, publish Publisher, opts Options) *Dispatcher {
	d := &Dispatcher{
		session:  sess,
		machine:  machine,
		registry: reg,
		store:    store,
		publish:  publish,
		now:      opts.Now,
		log:      opts.Log,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if opts.DedupWindow > 0 {
		d.seen = ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](opts.DedupWindow),
			ttlcache.WithCapacity[string, struct{}](20_000),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
		go d.seen.Start()
	}
	return d
}

// Close stops the duplicate tracker's janitor.
func (d *Dispatcher) Close() {
	if d.seen != nil {
		d.seen.Stop()
	}
}

// HandleFrame decodes one raw envelope and handles it. A decode error drops
// the frame: it is logged and returned, and nothing else happens.
func (d *Dispatcher) HandleFrame(ctx context.Context, data []byte) (events.Event, bool, error) {
	ev, err := events.Decode(data)
	if err != nil {
		var missing *events.MissingFieldError
		if errors.As(err, &missing) {
			d.log.Warn("event dropped", "kind", missing.Kind, "field", missing.Field, "err", err)
		} else {
			d.log.Warn("event dropped", "err", err)
		}
		return nil, false, err
	}
	return ev, d.Handle(ctx, ev), nil
}

// HandleConnection applies a transport-reported state and publishes the
// matching connection.changed event.
func (d *Dispatcher) HandleConnection(ctx context.Context, state connection.State) bool {
	return d.Handle(ctx, &events.ConnectionChangedEvent{
		Header: events.Header{Type: events.KindConnectionChanged},
		State:  state,
	})
}

// Handle applies the filter rules in order and reports whether ev was
// published. Early-return rules publish or suppress on their own; every
// other event takes the default path.
func (d *Dispatcher) Handle(ctx context.Context, ev events.Event) bool {
	switch e := ev.(type) {
	case *events.ConnectionChangedEvent:
		// Always published; a rejected transition only skips the side
		// effects and leaves the machine where it was.
		if !e.FromWire {
			if err := d.machine.Transition(ctx, e.State); err != nil {
				d.log.Error("connection transition rejected", "err", err)
			}
		}
		d.publish(ev)
		return true

	case *events.NotificationMutesUpdatedEvent:
		d.session.SetMutes(e.Me)
		d.publish(ev)
		return true

	case *events.UserUnbannedEvent:
		if cid, ok := e.ChannelID(); ok {
			if d.registry.Has(cid) {
				if _, err := d.store.Unban(ctx, cid, e.Target.ID); err != nil {
					d.log.Warn("unban bookkeeping failed", "cid", cid.String(), "user_id", e.Target.ID, "err", err)
				}
			}
			d.publish(ev)
			return true
		}

	case *events.MessageNewEvent:
		if d.mutedByViewer(e.User()) {
			d.log.Debug("message from muted user suppressed", "user_id", e.User().ID, "message_id", e.Message.ID)
			return false
		}
		if d.duplicate(e.Message.ID) {
			d.log.Debug("duplicate message suppressed", "message_id", e.Message.ID)
			return false
		}

	case *events.TypingEvent:
		if d.mutedByViewer(e.Typist) {
			return false
		}
	}

	// User-level counters first: the channel step reads the snapshot.
	if unread, ok := unreadOf(ev); ok {
		d.session.SetUnread(unread)
	}
	d.updateChannel(ctx, ev)
	d.publish(ev)
	return true
}

// mutedByViewer reports whether u is someone other than the viewer whom the
// viewer has muted.
func (d *Dispatcher) mutedByViewer(u *chat.User) bool {
	if u == nil || u.ID == d.session.UserID() {
		return false
	}
	return d.session.Mutes(u.ID, d.now())
}

// duplicate reports whether id was already seen, recording it otherwise.
func (d *Dispatcher) duplicate(id string) bool {
	if d.seen == nil || id == "" {
		return false
	}
	if d.seen.Has(id) {
		return true
	}
	d.seen.Set(id, struct{}{}, ttlcache.DefaultTTL)
	return false
}

// unreadOf returns the unread snapshot an event carries.
func unreadOf(ev events.Event) (chat.UnreadCount, bool) {
	switch e := ev.(type) {
	case *events.MessageNewEvent:
		return e.Unread, true
	case *events.NotificationMessageNewEvent:
		return e.Unread, true
	case *events.NotificationMarkReadEvent:
		return e.Unread, true
	case *events.NotificationMarkAllReadEvent:
		return e.Unread, true
	case *events.NotificationAddedToChannelEvent:
		return e.Unread, true
	}
	return chat.UnreadCount{}, false
}

// updateChannel applies per-channel bookkeeping for watched channels.
func (d *Dispatcher) updateChannel(ctx context.Context, ev events.Event) {
	if _, ok := ev.(*events.NotificationMarkAllReadEvent); ok {
		d.check(ev, d.store.ResetAllUnread(ctx))
		return
	}

	cid, ok := ev.ChannelID()
	if !ok || !d.registry.Has(cid) {
		return
	}

	switch e := ev.(type) {
	case *events.MessageNewEvent:
		if e.WatcherCount > 0 {
			d.check(ev, d.store.SetWatcherCount(ctx, cid, e.WatcherCount))
		}
		d.countMessage(ctx, ev, cid, e.Message)
	case *events.NotificationMessageNewEvent:
		if e.WatcherCount > 0 {
			d.check(ev, d.store.SetWatcherCount(ctx, cid, e.WatcherCount))
		}
		d.countMessage(ctx, ev, cid, e.Message)
	case *events.UserWatchingEvent:
		d.check(ev, d.store.SetWatcherCount(ctx, cid, e.WatcherCount))
	case *events.MessageReadEvent:
		if e.Read.User.ID == d.session.UserID() {
			d.check(ev, d.store.ResetUnread(ctx, cid))
		}
	case *events.NotificationMarkReadEvent:
		d.check(ev, d.store.ResetUnread(ctx, cid))
	case *events.UserBannedEvent:
		if e.Target != nil {
			d.check(ev, d.store.Ban(ctx, cid, channels.Ban{
				UserID:    e.Target.ID,
				Reason:    e.Reason,
				ExpiresAt: e.Expiration,
				CreatedAt: e.CreatedAt,
			}))
		}
	case *events.ChannelUpdatedEvent:
		d.check(ev, d.store.Upsert(ctx, *e.Chan))
	case *events.NotificationAddedToChannelEvent:
		d.check(ev, d.store.Upsert(ctx, *e.Chan))
	}
}

// countMessage recomputes the channel unread counter for a new message.
// The viewer's own messages mark the channel read; anyone else's add one,
// capped by the viewer's total unread messages.
func (d *Dispatcher) countMessage(ctx context.Context, ev events.Event, cid chat.ChannelID, m *chat.Message) {
	if m.AuthorID() == d.session.UserID() {
		d.check(ev, d.store.ResetUnread(ctx, cid))
		return
	}
	st, err := d.store.Get(ctx, cid)
	if err != nil {
		d.check(ev, err)
		return
	}
	n := min(st.UnreadCount+1, d.session.Unread().Messages)
	d.check(ev, d.store.SetUnread(ctx, cid, n))
}

func (d *Dispatcher) check(ev events.Event, err error) {
	if err == nil {
		return
	}
	cid, _ := ev.ChannelID()
	d.log.Warn("channel bookkeeping failed", "kind", ev.Kind(), "cid", cid.String(), "err", err)
}
