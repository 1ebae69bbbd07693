package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/connection"
)

// envelope is one raw wire envelope. Every variant decodes only the keys it
// reads, so a malformed key that a variant never looks at cannot fail it.
//
// A required key that is absent fails with *MissingFieldError, a required
// key of the wrong shape with ErrMalformedEnvelope. Optional keys of the
// wrong shape read as absent.
type envelope struct {
	kind EventKind
	raw  []byte
}

// Decode parses one wire envelope into its event variant.
//
// It fails with an *UnknownKindError when "type" is absent or unrecognised
// and with a *MissingFieldError when the selected variant lacks required
// data. Decode has no side effects and never retries.
func Decode(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedEnvelope)
	}
	t := gjson.GetBytes(data, "type")
	if t.Type != gjson.String || t.Str == "" {
		return nil, &UnknownKindError{}
	}
	kind := EventKind(t.Str)
	if !kind.Known() {
		return nil, &UnknownKindError{Kind: kind}
	}

	// connection.changed never looks at the body.
	if kind == KindConnectionChanged {
		return &ConnectionChangedEvent{
			Header:   Header{Type: kind},
			State:    connection.Disconnected(),
			FromWire: true,
		}, nil
	}

	env := envelope{kind: kind, raw: data}
	return env.build()
}

func (e *envelope) build() (Event, error) {
	h := Header{Type: e.kind}

	switch e.kind {
	case KindHealthCheck:
		// Two server shapes share this discriminant: the one carrying the
		// session user confirms a connection, the bare one is a pong.
		if !e.has("me") {
			return &PongEvent{Header: h, ConnectionID: e.str("connection_id")}, nil
		}
		me, err := required[chat.User](e, "me")
		if err != nil {
			return nil, err
		}
		id := e.str("connection_id")
		if id == "" {
			return nil, e.missing("connection_id")
		}
		return &HealthCheckEvent{Header: h, Me: me, ConnectionID: id}, nil

	case KindMessageNew:
		msg, err := required[chat.Message](e, "message")
		if err != nil {
			return nil, err
		}
		return &MessageNewEvent{
			Header:       h,
			Message:      msg,
			CID:          e.cid(),
			WatcherCount: e.watchers(),
			Unread:       e.unread(),
		}, nil

	case KindMessageUpdated:
		msg, err := required[chat.Message](e, "message")
		if err != nil {
			return nil, err
		}
		return &MessageUpdatedEvent{Header: h, Message: msg, CID: e.cid()}, nil

	case KindMessageDeleted:
		msg, err := required[chat.Message](e, "message")
		if err != nil {
			return nil, err
		}
		return &MessageDeletedEvent{Header: h, Message: msg, DeletedBy: optional[chat.User](e, "user"), CID: e.cid()}, nil

	case KindMessageRead:
		read, err := e.read()
		if err != nil {
			return nil, err
		}
		return &MessageReadEvent{Header: h, Read: read, CID: e.cid()}, nil

	case KindReactionNew, KindReactionUpdated, KindReactionDeleted:
		reaction, err := required[chat.Reaction](e, "reaction")
		if err != nil {
			return nil, err
		}
		msg, err := required[chat.Message](e, "message")
		if err != nil {
			return nil, err
		}
		user, err := required[chat.User](e, "user")
		if err != nil {
			return nil, err
		}
		return &ReactionEvent{Header: h, Reaction: reaction, Message: msg, Reactor: user, CID: e.cid()}, nil

	case KindChannelUpdated:
		ch, err := required[chat.Channel](e, "channel")
		if err != nil {
			return nil, err
		}
		return &ChannelUpdatedEvent{
			Header:  h,
			Chan:    ch,
			Message: optional[chat.Message](e, "message"),
			Actor:   optional[chat.User](e, "user"),
			CID:     e.cid(),
		}, nil

	case KindChannelDeleted:
		ch, err := required[chat.Channel](e, "channel")
		if err != nil {
			return nil, err
		}
		return &ChannelDeletedEvent{Header: h, Chan: ch, CID: e.cid()}, nil

	case KindChannelHidden:
		cid := e.cid()
		if cid == nil {
			return nil, e.missing("cid")
		}
		ev := &ChannelHiddenEvent{Header: h, CID: *cid}
		if at := optional[time.Time](e, "created_at"); at != nil {
			ev.CreatedAt = *at
		}
		return ev, nil

	case KindChannelTruncated:
		ch, err := required[chat.Channel](e, "channel")
		if err != nil {
			return nil, err
		}
		return &ChannelTruncatedEvent{Header: h, Chan: ch, CID: e.cid()}, nil

	case KindUserUpdated:
		user, err := required[chat.User](e, "user")
		if err != nil {
			return nil, err
		}
		return &UserUpdatedEvent{Header: h, Subject: user}, nil

	case KindUserPresenceChanged:
		user, err := required[chat.User](e, "user")
		if err != nil {
			return nil, err
		}
		return &UserPresenceChangedEvent{Header: h, Subject: user}, nil

	case KindUserStartWatching, KindUserStopWatching:
		user, err := required[chat.User](e, "user")
		if err != nil {
			return nil, err
		}
		n := gjson.GetBytes(e.raw, "watcher_count")
		switch {
		case !n.Exists() || n.Type == gjson.Null:
			return nil, e.missing("watcher_count")
		case n.Type != gjson.Number:
			return nil, e.malformed("watcher_count", fmt.Errorf("not a number: %s", n.Raw))
		}
		return &UserWatchingEvent{Header: h, Watcher: user, WatcherCount: int(n.Int()), CID: e.cid()}, nil

	case KindUserBanned:
		at, err := required[time.Time](e, "created_at")
		if err != nil {
			return nil, err
		}
		return &UserBannedEvent{
			Header:     h,
			Target:     optional[chat.User](e, "user"),
			Reason:     e.str("reason"),
			Expiration: optional[time.Time](e, "expiration"),
			CreatedAt:  *at,
			CID:        e.moderationCID(),
		}, nil

	case KindUserUnbanned:
		user, err := required[chat.User](e, "user")
		if err != nil {
			return nil, err
		}
		return &UserUnbannedEvent{Header: h, Target: user, CID: e.moderationCID()}, nil

	// member.added decodes to the member.updated variant; only the kind
	// tells them apart.
	case KindMemberAdded, KindMemberUpdated:
		member, err := required[chat.Member](e, "member")
		if err != nil {
			return nil, err
		}
		return &MemberUpdatedEvent{Header: h, Member: member, CID: e.cid()}, nil

	case KindMemberRemoved:
		user, err := required[chat.User](e, "user")
		if err != nil {
			return nil, err
		}
		return &MemberRemovedEvent{Header: h, Removed: user, CID: e.cid()}, nil

	case KindTypingStart, KindTypingStop:
		user, err := required[chat.User](e, "user")
		if err != nil {
			return nil, err
		}
		return &TypingEvent{Header: h, Typist: user, CID: e.cid()}, nil

	case KindNotificationMessageNew:
		msg, err := required[chat.Message](e, "message")
		if err != nil {
			return nil, err
		}
		ch, err := required[chat.Channel](e, "channel")
		if err != nil {
			return nil, err
		}
		return &NotificationMessageNewEvent{
			Header:       h,
			Message:      msg,
			Chan:         ch,
			WatcherCount: e.watchers(),
			Unread:       e.unread(),
		}, nil

	case KindNotificationMarkRead:
		read, err := e.read()
		if err != nil {
			return nil, err
		}
		// One discriminant, two events: a channel payload scopes the read
		// to that channel, its absence means every channel was read.
		if e.has("channel") {
			ch, err := required[chat.Channel](e, "channel")
			if err != nil {
				return nil, err
			}
			return &NotificationMarkReadEvent{Header: h, Read: read, Chan: ch, Unread: e.unread()}, nil
		}
		return &NotificationMarkAllReadEvent{Header: h, Read: read, Unread: e.unread()}, nil

	case KindNotificationMutesUpdated, KindNotificationChannelMutesUpdated:
		me, err := required[chat.User](e, "me")
		if err != nil {
			return nil, err
		}
		return &NotificationMutesUpdatedEvent{Header: h, Me: me}, nil

	case KindNotificationAddedToChannel:
		ch, err := required[chat.Channel](e, "channel")
		if err != nil {
			return nil, err
		}
		return &NotificationAddedToChannelEvent{Header: h, Chan: ch, Member: optional[chat.Member](e, "member"), Unread: e.unread()}, nil

	case KindNotificationRemovedFromChannel:
		ch, cid := optional[chat.Channel](e, "channel"), e.cid()
		if ch == nil && cid == nil {
			return nil, e.missing("cid")
		}
		return &NotificationRemovedFromChannelEvent{Header: h, Chan: ch, Member: optional[chat.Member](e, "member"), CID: cid}, nil

	case KindNotificationInvited, KindNotificationInviteAccepted, KindNotificationInviteRejected:
		ch, err := required[chat.Channel](e, "channel")
		if err != nil {
			return nil, err
		}
		return &NotificationInviteEvent{Header: h, Chan: ch, Member: optional[chat.Member](e, "member")}, nil
	}

	// Only reachable when Kinds gains an entry without a case above.
	return nil, &UnknownKindError{Kind: e.kind}
}

func (e *envelope) missing(key string) error {
	return &MissingFieldError{Kind: e.kind, Field: key}
}

func (e *envelope) malformed(key string, err error) error {
	return fmt.Errorf("%w: %s: %s: %v", ErrMalformedEnvelope, e.kind, key, err)
}

// field decodes the value at key. It returns nil when key is absent or null.
func field[T any](e *envelope, key string) (*T, error) {
	r := gjson.GetBytes(e.raw, key)
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(r.Raw), v); err != nil {
		return nil, e.malformed(key, err)
	}
	return v, nil
}

func required[T any](e *envelope, key string) (*T, error) {
	v, err := field[T](e, key)
	if err == nil && v == nil {
		err = e.missing(key)
	}
	return v, err
}

func optional[T any](e *envelope, key string) *T {
	v, _ := field[T](e, key)
	return v
}

// str returns the string at key, or "" when it is absent or not a string.
func (e *envelope) str(key string) string {
	r := gjson.GetBytes(e.raw, key)
	if r.Type != gjson.String {
		return ""
	}
	return r.Str
}

// has reports whether key is present as a JSON object.
func (e *envelope) has(key string) bool {
	return gjson.GetBytes(e.raw, key).IsObject()
}

// cid returns the bare "cid" field. A malformed cid is treated as absent.
func (e *envelope) cid() *chat.ChannelID {
	raw := e.str("cid")
	if raw == "" {
		return nil
	}
	cid, err := chat.ParseChannelID(raw)
	if err != nil {
		return nil
	}
	return &cid
}

// moderationCID resolves the channel of a ban event. The (channel_type,
// channel_id) pair wins over "cid" when it is decodable.
func (e *envelope) moderationCID() *chat.ChannelID {
	if typ, id := e.str("channel_type"), e.str("channel_id"); typ != "" && id != "" {
		if cid, err := chat.NewChannelID(typ, id); err == nil {
			return &cid
		}
	}
	return e.cid()
}

// watchers returns watcher_count, defaulting to zero.
func (e *envelope) watchers() int {
	n := gjson.GetBytes(e.raw, "watcher_count")
	if n.Type != gjson.Number {
		return 0
	}
	return int(n.Int())
}

// unread reads the unread counters, defaulting each to zero. A missing
// total_unread_count falls back to unread_messages.
func (e *envelope) unread() chat.UnreadCount {
	res := gjson.GetManyBytes(e.raw, "unread_channels", "total_unread_count", "unread_messages")
	u := chat.UnreadCount{Channels: int(res[0].Int())}
	if res[1].Exists() {
		u.Messages = int(res[1].Int())
	} else {
		u.Messages = int(res[2].Int())
	}
	return u
}

// read builds the read marker of read-state events.
func (e *envelope) read() (chat.MessageRead, error) {
	user, err := required[chat.User](e, "user")
	if err != nil {
		return chat.MessageRead{}, err
	}
	r := chat.MessageRead{User: *user}
	if at := optional[time.Time](e, "created_at"); at != nil {
		r.LastRead = *at
	}
	return r, nil
}
