// Package chat holds the chat records the realtime layer extracts from
// server events. They mirror the backend wire shapes and carry no behaviour
// beyond small lookups.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidChannelID = errors.New("invalid channel id")

// ---- Channel identifier ---------------------------------------------------

// ChannelID is the "type:id" pair that addresses a channel on the wire (cid).
type ChannelID struct {
	Type string
	ID   string
}

// NewChannelID builds a ChannelID from its parts.
func NewChannelID(channelType, id string) (ChannelID, error) {
	if channelType == "" || id == "" || strings.Contains(channelType, ":") {
		return ChannelID{}, fmt.Errorf("%w: %q:%q", ErrInvalidChannelID, channelType, id)
	}
	return ChannelID{Type: channelType, ID: id}, nil
}

// ParseChannelID parses the wire form "type:id".
func ParseChannelID(s string) (ChannelID, error) {
	channelType, id, ok := strings.Cut(s, ":")
	if !ok {
		return ChannelID{}, fmt.Errorf("%w: %q", ErrInvalidChannelID, s)
	}
	return NewChannelID(channelType, id)
}

func (c ChannelID) String() string {
	return c.Type + ":" + c.ID
}

// IsZero reports whether c is the empty identifier.
func (c ChannelID) IsZero() bool {
	return c.Type == "" && c.ID == ""
}

func (c ChannelID) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ChannelID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseChannelID(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ---- Users ----------------------------------------------------------------

type User struct {
	ID               string        `json:"id"`
	Name             string        `json:"name,omitempty"`
	Role             string        `json:"role,omitempty"`
	Online           bool          `json:"online"`
	Banned           bool          `json:"banned,omitempty"`
	LastActive       *time.Time    `json:"last_active,omitempty"`
	CreatedAt        *time.Time    `json:"created_at,omitempty"`
	Mutes            []Mute        `json:"mutes,omitempty"`
	ChannelMutes     []ChannelMute `json:"channel_mutes,omitempty"`
	UnreadChannels   int           `json:"unread_channels,omitempty"`
	TotalUnreadCount int           `json:"total_unread_count,omitempty"`
}

// Mute records that User muted Target. Expires is nil for permanent mutes.
type Mute struct {
	User      User       `json:"user"`
	Target    User       `json:"target"`
	CreatedAt time.Time  `json:"created_at"`
	Expires   *time.Time `json:"expires,omitempty"`
}

type ChannelMute struct {
	User      User       `json:"user"`
	Channel   *Channel   `json:"channel,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Expires   *time.Time `json:"expires,omitempty"`
}

// IsMuted reports whether u has an active mute on userID at time now.
func (u *User) IsMuted(userID string, now time.Time) bool {
	if u == nil || userID == "" {
		return false
	}
	for _, m := range u.Mutes {
		if m.Target.ID != userID {
			continue
		}
		if m.Expires == nil || m.Expires.After(now) {
			return true
		}
	}
	return false
}

// Unread returns the unread counters the server embeds in the user record.
func (u *User) Unread() UnreadCount {
	if u == nil {
		return UnreadCount{}
	}
	return UnreadCount{Channels: u.UnreadChannels, Messages: u.TotalUnreadCount}
}

// Clone returns a deep enough copy for handing out of a guarded cell.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Mutes = append([]Mute(nil), u.Mutes...)
	c.ChannelMutes = append([]ChannelMute(nil), u.ChannelMutes...)
	return &c
}

// ---- Channels -------------------------------------------------------------

type Channel struct {
	CID         ChannelID  `json:"cid"`
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Name        string     `json:"name,omitempty"`
	MemberCount int        `json:"member_count,omitempty"`
	Frozen      bool       `json:"frozen,omitempty"`
	CreatedBy   *User      `json:"created_by,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// ---- Messages -------------------------------------------------------------

type Message struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Type       string     `json:"type,omitempty"`
	User       *User      `json:"user,omitempty"`
	ParentID   string     `json:"parent_id,omitempty"`
	ReplyCount int        `json:"reply_count,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// AuthorID returns the id of the message author, or "" when unknown.
func (m *Message) AuthorID() string {
	if m == nil || m.User == nil {
		return ""
	}
	return m.User.ID
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id,omitempty"`
	User      *User     `json:"user,omitempty"`
	Type      string    `json:"type"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// ---- Membership & read state ----------------------------------------------

type Member struct {
	UserID           string     `json:"user_id,omitempty"`
	User             *User      `json:"user,omitempty"`
	Role             string     `json:"role,omitempty"`
	Banned           bool       `json:"banned,omitempty"`
	Invited          bool       `json:"invited,omitempty"`
	InviteAcceptedAt *time.Time `json:"invite_accepted_at,omitempty"`
	InviteRejectedAt *time.Time `json:"invite_rejected_at,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// MessageRead is the read marker of one user.
type MessageRead struct {
	User     User      `json:"user"`
	LastRead time.Time `json:"last_read"`
}

// UnreadCount is always replaced wholesale, never merged field by field.
type UnreadCount struct {
	Channels int `json:"unread_channels"`
	Messages int `json:"total_unread_count"`
}
