package events

import "strings"

// EventKind is the wire discriminant carried in the envelope's "type" field.
type EventKind string

const (
	KindConnectionChanged EventKind = "connection.changed"
	KindHealthCheck       EventKind = "health.check"

	KindMessageNew     EventKind = "message.new"
	KindMessageUpdated EventKind = "message.updated"
	KindMessageDeleted EventKind = "message.deleted"
	KindMessageRead    EventKind = "message.read"

	KindReactionNew     EventKind = "reaction.new"
	KindReactionUpdated EventKind = "reaction.updated"
	KindReactionDeleted EventKind = "reaction.deleted"

	KindChannelUpdated   EventKind = "channel.updated"
	KindChannelDeleted   EventKind = "channel.deleted"
	KindChannelHidden    EventKind = "channel.hidden"
	KindChannelTruncated EventKind = "channel.truncated"

	KindUserUpdated         EventKind = "user.updated"
	KindUserPresenceChanged EventKind = "user.presence.changed"
	KindUserStartWatching   EventKind = "user.watching.start"
	KindUserStopWatching    EventKind = "user.watching.stop"
	KindUserBanned          EventKind = "user.banned"
	KindUserUnbanned        EventKind = "user.unbanned"

	KindMemberAdded   EventKind = "member.added"
	KindMemberUpdated EventKind = "member.updated"
	KindMemberRemoved EventKind = "member.removed"

	KindTypingStart EventKind = "typing.start"
	KindTypingStop  EventKind = "typing.stop"

	KindNotificationMessageNew          EventKind = "notification.message_new"
	KindNotificationMarkRead            EventKind = "notification.mark_read"
	KindNotificationMutesUpdated        EventKind = "notification.mutes_updated"
	KindNotificationChannelMutesUpdated EventKind = "notification.channel_mutes_updated"
	KindNotificationAddedToChannel      EventKind = "notification.added_to_channel"
	KindNotificationRemovedFromChannel  EventKind = "notification.removed_from_channel"
	KindNotificationInvited             EventKind = "notification.invited"
	KindNotificationInviteAccepted      EventKind = "notification.invite_accepted"
	KindNotificationInviteRejected      EventKind = "notification.invite_rejected"
)

// Kinds lists every discriminant Decode accepts.
var Kinds = []EventKind{
	KindConnectionChanged, KindHealthCheck,
	KindMessageNew, KindMessageUpdated, KindMessageDeleted, KindMessageRead,
	KindReactionNew, KindReactionUpdated, KindReactionDeleted,
	KindChannelUpdated, KindChannelDeleted, KindChannelHidden, KindChannelTruncated,
	KindUserUpdated, KindUserPresenceChanged, KindUserStartWatching, KindUserStopWatching,
	KindUserBanned, KindUserUnbanned,
	KindMemberAdded, KindMemberUpdated, KindMemberRemoved,
	KindTypingStart, KindTypingStop,
	KindNotificationMessageNew, KindNotificationMarkRead,
	KindNotificationMutesUpdated, KindNotificationChannelMutesUpdated,
	KindNotificationAddedToChannel, KindNotificationRemovedFromChannel,
	KindNotificationInvited, KindNotificationInviteAccepted, KindNotificationInviteRejected,
}

var knownKinds = func() map[EventKind]struct{} {
	m := make(map[EventKind]struct{}, len(Kinds))
	for _, k := range Kinds {
		m[k] = struct{}{}
	}
	return m
}()

// Known reports whether k is a recognised discriminant.
func (k EventKind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// IsNotification reports whether k belongs to the notification family.
func (k EventKind) IsNotification() bool {
	return strings.HasPrefix(string(k), "notification.")
}
