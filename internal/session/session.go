// Package session holds the process-wide view of the signed-in user: the
// cached user record, its unread snapshot and the live connection id.
//
// Writers are the connection machine (on connect) and the dispatcher (on
// events); both run on the client's single event loop. Readers such as the
// query client or a UI may call from any goroutine.
package session

import (
	"sync"
	"time"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

type Session struct {
	mu           sync.RWMutex
	user         *chat.User
	unread       chat.UnreadCount
	connectionID string
}

func New() *Session {
	return &Session{}
}

// SetCurrentUser replaces the cached user and its unread snapshot with the
// record the server sent on connect.
func (s *Session) SetCurrentUser(user *chat.User, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user.Clone()
	s.unread = user.Unread()
	s.connectionID = connectionID
}

// CurrentUser returns a copy of the cached user, or nil before the first
// connection.
func (s *Session) CurrentUser() *chat.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

// UserID returns the id of the cached user, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) ConnectionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionID
}

func (s *Session) Unread() chat.UnreadCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// SetUnread replaces the unread snapshot wholesale.
func (s *Session) SetUnread(u chat.UnreadCount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = u
	if s.user != nil {
		s.user.UnreadChannels = u.Channels
		s.user.TotalUnreadCount = u.Messages
	}
}

// SetMutes replaces the mute lists of the cached user from an updated
// record of the same user. Records for other users are ignored.
func (s *Session) SetMutes(me *chat.User) bool {
	if me == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ID != me.ID {
		return false
	}
	s.user.Mutes = append([]chat.Mute(nil), me.Mutes...)
	s.user.ChannelMutes = append([]chat.ChannelMute(nil), me.ChannelMutes...)
	return true
}

// Mutes reports whether the cached user mutes userID at now.
func (s *Session) Mutes(userID string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.IsMuted(userID, now)
}
