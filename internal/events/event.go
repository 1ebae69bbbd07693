// Package events decodes server-pushed realtime envelopes into a closed set
// of typed events.
//
// Every variant implements Event. The accessors live on the interface so a
// new variant that forgets one fails to compile instead of silently falling
// into a default. The union is closed: only the variants below implement
// isEvent.
package events

import (
	"time"

	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/connection"
)

// Event is one decoded server event.
type Event interface {
	// Kind is the discriminant the event was decoded from.
	Kind() EventKind
	// ChannelID returns the channel the event is about, if any. A bare cid
	// wins over the cid of an embedded channel.
	ChannelID() (chat.ChannelID, bool)
	// Channel returns the embedded channel for channel-level events.
	Channel() *chat.Channel
	// User returns the user that originated the event. Membership events
	// return the member's user, new messages their author.
	User() *chat.User

	isEvent()
}

// IsNotification reports whether e belongs to the notification family.
func IsNotification(e Event) bool {
	return e.Kind().IsNotification()
}

// Header carries the discriminant shared by every variant.
type Header struct {
	Type EventKind `json:"type"`
}

func (h Header) Kind() EventKind { return h.Type }

// ---- Connection ------------------------------------------------------------

// ConnectionChangedEvent reports a transport state change. Decoded envelopes
// always carry the disconnected placeholder with FromWire set; the real
// state only ever comes from the transport.
type ConnectionChangedEvent struct {
	Header
	State    connection.State
	FromWire bool
}

// HealthCheckEvent is the server heartbeat that carries the session user.
// The first one on a connection confirms it.
type HealthCheckEvent struct {
	Header
	Me           *chat.User
	ConnectionID string
}

// PongEvent is a health.check without a session user.
type PongEvent struct {
	Header
	ConnectionID string
}

// ---- Messages --------------------------------------------------------------

type MessageNewEvent struct {
	Header
	Message      *chat.Message
	CID          *chat.ChannelID
	WatcherCount int
	Unread       chat.UnreadCount
}

type MessageUpdatedEvent struct {
	Header
	Message *chat.Message
	CID     *chat.ChannelID
}

type MessageDeletedEvent struct {
	Header
	Message *chat.Message
	// DeletedBy is set when the server names who deleted the message.
	DeletedBy *chat.User
	CID       *chat.ChannelID
}

type MessageReadEvent struct {
	Header
	Read chat.MessageRead
	CID  *chat.ChannelID
}

// ---- Reactions -------------------------------------------------------------

// ReactionEvent covers reaction.new, reaction.updated and reaction.deleted.
type ReactionEvent struct {
	Header
	Reaction *chat.Reaction
	Message  *chat.Message
	Reactor  *chat.User
	CID      *chat.ChannelID
}

// ---- Channels --------------------------------------------------------------

type ChannelUpdatedEvent struct {
	Header
	Chan    *chat.Channel
	Message *chat.Message
	Actor   *chat.User
	CID     *chat.ChannelID
}

type ChannelDeletedEvent struct {
	Header
	Chan *chat.Channel
	CID  *chat.ChannelID
}

type ChannelHiddenEvent struct {
	Header
	CID       chat.ChannelID
	CreatedAt time.Time
}

type ChannelTruncatedEvent struct {
	Header
	Chan *chat.Channel
	CID  *chat.ChannelID
}

// ---- Users -----------------------------------------------------------------

type UserUpdatedEvent struct {
	Header
	Subject *chat.User
}

type UserPresenceChangedEvent struct {
	Header
	Subject *chat.User
}

// UserWatchingEvent covers user.watching.start and user.watching.stop.
type UserWatchingEvent struct {
	Header
	Watcher      *chat.User
	WatcherCount int
	CID          *chat.ChannelID
}

// UserBannedEvent carries moderation metadata only; it names no acting user.
type UserBannedEvent struct {
	Header
	Target     *chat.User
	Reason     string
	Expiration *time.Time
	CreatedAt  time.Time
	CID        *chat.ChannelID
}

type UserUnbannedEvent struct {
	Header
	Target *chat.User
	CID    *chat.ChannelID
}

// ---- Members ---------------------------------------------------------------

// MemberUpdatedEvent is produced for both member.updated and member.added.
type MemberUpdatedEvent struct {
	Header
	Member *chat.Member
	CID    *chat.ChannelID
}

type MemberRemovedEvent struct {
	Header
	Removed *chat.User
	CID     *chat.ChannelID
}

// ---- Typing ----------------------------------------------------------------

// TypingEvent covers typing.start and typing.stop.
type TypingEvent struct {
	Header
	Typist *chat.User
	CID    *chat.ChannelID
}

// ---- Notifications ---------------------------------------------------------

type NotificationMessageNewEvent struct {
	Header
	Message      *chat.Message
	Chan         *chat.Channel
	WatcherCount int
	Unread       chat.UnreadCount
}

// NotificationMarkReadEvent is notification.mark_read for one channel.
type NotificationMarkReadEvent struct {
	Header
	Read   chat.MessageRead
	Chan   *chat.Channel
	Unread chat.UnreadCount
}

// NotificationMarkAllReadEvent is notification.mark_read without a channel.
type NotificationMarkAllReadEvent struct {
	Header
	Read   chat.MessageRead
	Unread chat.UnreadCount
}

// NotificationMutesUpdatedEvent covers notification.mutes_updated and
// notification.channel_mutes_updated. Me holds the new mute lists.
type NotificationMutesUpdatedEvent struct {
	Header
	Me *chat.User
}

type NotificationAddedToChannelEvent struct {
	Header
	Chan   *chat.Channel
	Member *chat.Member
	Unread chat.UnreadCount
}

type NotificationRemovedFromChannelEvent struct {
	Header
	Chan   *chat.Channel
	Member *chat.Member
	CID    *chat.ChannelID
}

// NotificationInviteEvent covers invited, invite_accepted and
// invite_rejected.
type NotificationInviteEvent struct {
	Header
	Chan   *chat.Channel
	Member *chat.Member
}
