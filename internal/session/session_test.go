package session

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

func TestSessionEmpty(t *testing.T) {
	s := New()
	assert.Equal(t, s.CurrentUser() == nil, true)
	assert.Equal(t, s.UserID(), "")
	assert.Equal(t, s.Unread(), chat.UnreadCount{})
	assert.Equal(t, s.Mutes("bob", time.Now()), false)
	assert.Equal(t, s.SetMutes(&chat.User{ID: "alice"}), false)
}

func TestSessionSetCurrentUser(t *testing.T) {
	s := New()
	s.SetCurrentUser(&chat.User{ID: "alice", UnreadChannels: 2, TotalUnreadCount: 5}, "c1")

	assert.Equal(t, s.UserID(), "alice")
	assert.Equal(t, s.ConnectionID(), "c1")
	assert.Equal(t, s.Unread(), chat.UnreadCount{Channels: 2, Messages: 5})

	// Returned users are copies.
	u := s.CurrentUser()
	u.ID = "mallory"
	assert.Equal(t, s.UserID(), "alice")
}

func TestSessionSetUnreadReplaces(t *testing.T) {
	s := New()
	s.SetCurrentUser(&chat.User{ID: "alice", UnreadChannels: 2, TotalUnreadCount: 5}, "c1")

	s.SetUnread(chat.UnreadCount{Messages: 1})
	assert.Equal(t, s.Unread(), chat.UnreadCount{Messages: 1})
	assert.Equal(t, s.CurrentUser().UnreadChannels, 0)
	assert.Equal(t, s.CurrentUser().TotalUnreadCount, 1)
}

func TestSessionMutes(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	s := New()
	s.SetCurrentUser(&chat.User{ID: "alice"}, "c1")
	assert.Equal(t, s.Mutes("bob", now), false)

	updated := &chat.User{ID: "alice", Mutes: []chat.Mute{
		{Target: chat.User{ID: "bob"}},
		{Target: chat.User{ID: "carol"}, Expires: &past},
	}}
	assert.Equal(t, s.SetMutes(updated), true)
	assert.Equal(t, s.Mutes("bob", now), true)
	assert.Equal(t, s.Mutes("carol", now), false)

	// A record for someone else never touches the viewer's mutes.
	assert.Equal(t, s.SetMutes(&chat.User{ID: "bob"}), false)
	assert.Equal(t, s.Mutes("bob", now), true)

	assert.Equal(t, s.SetMutes(&chat.User{ID: "alice"}), true)
	assert.Equal(t, s.Mutes("bob", now), false)
}
