package events

import "github.com/clk-66/spectrus-realtime/internal/chat"

// cidOf prefers a directly decoded identifier and falls back to the cid of
// an embedded channel.
func cidOf(cid *chat.ChannelID, ch *chat.Channel) (chat.ChannelID, bool) {
	if cid != nil {
		return *cid, true
	}
	if ch != nil && !ch.CID.IsZero() {
		return ch.CID, true
	}
	return chat.ChannelID{}, false
}

func (e *ConnectionChangedEvent) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (e *ConnectionChangedEvent) Channel() *chat.Channel { return nil }
func (e *ConnectionChangedEvent) User() *chat.User { return e.State.User }

func (e *HealthCheckEvent) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (e *HealthCheckEvent) Channel() *chat.Channel { return nil }
func (e *HealthCheckEvent) User() *chat.User { return e.Me }

func (e *PongEvent) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (e *PongEvent) Channel() *chat.Channel { return nil }
func (e *PongEvent) User() *chat.User { return nil }

func (e *MessageNewEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *MessageNewEvent) Channel() *chat.Channel { return nil }
func (e *MessageNewEvent) User() *chat.User { return e.Message.User }

func (e *MessageUpdatedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *MessageUpdatedEvent) Channel() *chat.Channel { return nil }
func (e *MessageUpdatedEvent) User() *chat.User { return e.Message.User }

func (e *MessageDeletedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *MessageDeletedEvent) Channel() *chat.Channel { return nil }
func (e *MessageDeletedEvent) User() *chat.User { return nil }

func (e *MessageReadEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *MessageReadEvent) Channel() *chat.Channel { return nil }
func (e *MessageReadEvent) User() *chat.User { return nil }

func (e *ReactionEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *ReactionEvent) Channel() *chat.Channel { return nil }
func (e *ReactionEvent) User() *chat.User { return e.Reactor }

func (e *ChannelUpdatedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, e.Chan) }
func (e *ChannelUpdatedEvent) Channel() *chat.Channel { return e.Chan }
func (e *ChannelUpdatedEvent) User() *chat.User { return e.Actor }

func (e *ChannelDeletedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, e.Chan) }
func (e *ChannelDeletedEvent) Channel() *chat.Channel { return e.Chan }
func (e *ChannelDeletedEvent) User() *chat.User { return nil }

func (e *ChannelHiddenEvent) ChannelID() (chat.ChannelID, bool) { return e.CID, true }
func (e *ChannelHiddenEvent) Channel() *chat.Channel { return nil }
func (e *ChannelHiddenEvent) User() *chat.User { return nil }

func (e *ChannelTruncatedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, e.Chan) }
func (e *ChannelTruncatedEvent) Channel() *chat.Channel { return e.Chan }
func (e *ChannelTruncatedEvent) User() *chat.User { return nil }

func (e *UserUpdatedEvent) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (e *UserUpdatedEvent) Channel() *chat.Channel { return nil }
func (e *UserUpdatedEvent) User() *chat.User { return e.Subject }

func (e *UserPresenceChangedEvent) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (e *UserPresenceChangedEvent) Channel() *chat.Channel { return nil }
func (e *UserPresenceChangedEvent) User() *chat.User { return e.Subject }

func (e *UserWatchingEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *UserWatchingEvent) Channel() *chat.Channel { return nil }
func (e *UserWatchingEvent) User() *chat.User { return e.Watcher }

func (e *UserBannedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *UserBannedEvent) Channel() *chat.Channel { return nil }
func (e *UserBannedEvent) User() *chat.User { return nil }

func (e *UserUnbannedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *UserUnbannedEvent) Channel() *chat.Channel { return nil }
func (e *UserUnbannedEvent) User() *chat.User { return nil }

func (e *MemberUpdatedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *MemberUpdatedEvent) Channel() *chat.Channel { return nil }
func (e *MemberUpdatedEvent) User() *chat.User { return e.Member.User }

func (e *MemberRemovedEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *MemberRemovedEvent) Channel() *chat.Channel { return nil }
func (e *MemberRemovedEvent) User() *chat.User { return e.Removed }

func (e *TypingEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(e.CID, nil) }
func (e *TypingEvent) Channel() *chat.Channel { return nil }
func (e *TypingEvent) User() *chat.User { return e.Typist }

func (e *NotificationMessageNewEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(nil, e.Chan) }
func (e *NotificationMessageNewEvent) Channel() *chat.Channel { return e.Chan }
func (e *NotificationMessageNewEvent) User() *chat.User { return e.Message.User }

func (e *NotificationMarkReadEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(nil, e.Chan) }
func (e *NotificationMarkReadEvent) Channel() *chat.Channel { return e.Chan }
func (e *NotificationMarkReadEvent) User() *chat.User { return nil }

func (e *NotificationMarkAllReadEvent) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (e *NotificationMarkAllReadEvent) Channel() *chat.Channel { return nil }
func (e *NotificationMarkAllReadEvent) User() *chat.User { return nil }

func (e *NotificationMutesUpdatedEvent) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (e *NotificationMutesUpdatedEvent) Channel() *chat.Channel { return nil }
func (e *NotificationMutesUpdatedEvent) User() *chat.User { return e.Me }

func (e *NotificationAddedToChannelEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(nil, e.Chan) }
func (e *NotificationAddedToChannelEvent) Channel() *chat.Channel { return e.Chan }
func (e *NotificationAddedToChannelEvent) User() *chat.User { return memberUser(e.Member) }

func (e *NotificationRemovedFromChannelEvent) ChannelID() (chat.ChannelID, bool) {
	return cidOf(e.CID, e.Chan)
}
func (e *NotificationRemovedFromChannelEvent) Channel() *chat.Channel { return e.Chan }
func (e *NotificationRemovedFromChannelEvent) User() *chat.User { return memberUser(e.Member) }

func (e *NotificationInviteEvent) ChannelID() (chat.ChannelID, bool) { return cidOf(nil, e.Chan) }
func (e *NotificationInviteEvent) Channel() *chat.Channel { return e.Chan }
func (e *NotificationInviteEvent) User() *chat.User { return memberUser(e.Member) }

func memberUser(m *chat.Member) *chat.User {
	if m == nil {
		return nil
	}
	return m.User
}

func (*ConnectionChangedEvent) isEvent() {}
func (*HealthCheckEvent) isEvent() {}
func (*PongEvent) isEvent() {}
func (*MessageNewEvent) isEvent() {}
func (*MessageUpdatedEvent) isEvent() {}
func (*MessageDeletedEvent) isEvent() {}
func (*MessageReadEvent) isEvent() {}
func (*ReactionEvent) isEvent() {}
func (*ChannelUpdatedEvent) isEvent() {}
func (*ChannelDeletedEvent) isEvent() {}
func (*ChannelHiddenEvent) isEvent() {}
func (*ChannelTruncatedEvent) isEvent() {}
func (*UserUpdatedEvent) isEvent() {}
func (*UserPresenceChangedEvent) isEvent() {}
func (*UserWatchingEvent) isEvent() {}
func (*UserBannedEvent) isEvent() {}
func (*UserUnbannedEvent) isEvent() {}
func (*MemberUpdatedEvent) isEvent() {}
func (*MemberRemovedEvent) isEvent() {}
func (*TypingEvent) isEvent() {}
func (*NotificationMessageNewEvent) isEvent() {}
func (*NotificationMarkReadEvent) isEvent() {}
func (*NotificationMarkAllReadEvent) isEvent() {}
func (*NotificationMutesUpdatedEvent) isEvent() {}
func (*NotificationAddedToChannelEvent) isEvent() {}
func (*NotificationRemovedFromChannelEvent) isEvent() {}
func (*NotificationInviteEvent) isEvent() {}
