package api

import (
	"github.com/clk-66/spectrus-realtime/internal/chat"
)

// ChannelsQuery selects channels by cid. Only the shapes the realtime layer
// issues are modelled.
type ChannelsQuery struct {
	CIDs         []chat.ChannelID
	Limit        int
	Offset       int
	MessageLimit int
	Watch        bool
	State        bool
	Presence     bool
}

// WatchQuery returns the query that (re)subscribes to cids: one page sized
// to the set, the latest message per channel, watch on.
func WatchQuery(cids []chat.ChannelID) ChannelsQuery {
	return ChannelsQuery{
		CIDs:         cids,
		Limit:        len(cids),
		MessageLimit: 1,
		Watch:        true,
		State:        true,
	}
}

type channelsRequest struct {
	FilterConditions map[string]any `json:"filter_conditions"`
	Limit            int            `json:"limit,omitempty"`
	Offset           int            `json:"offset,omitempty"`
	MessageLimit     int            `json:"message_limit"`
	Watch            bool           `json:"watch"`
	State            bool           `json:"state"`
	Presence         bool           `json:"presence"`
	ConnectionID     string         `json:"connection_id,omitempty"`
}

func (q ChannelsQuery) payload(connectionID string) channelsRequest {
	cids := make([]string, len(q.CIDs))
	for i, cid := range q.CIDs {
		cids[i] = cid.String()
	}
	return channelsRequest{
		FilterConditions: map[string]any{"cid": map[string]any{"$in": cids}},
		Limit:            q.Limit,
		Offset:           q.Offset,
		MessageLimit:     q.MessageLimit,
		Watch:            q.Watch,
		State:            q.State,
		Presence:         q.Presence,
		ConnectionID:     connectionID,
	}
}

// ChannelState is one channel in a query response.
type ChannelState struct {
	Channel      chat.Channel   `json:"channel"`
	Messages     []chat.Message `json:"messages"`
	Members      []chat.Member  `json:"members"`
	WatcherCount int            `json:"watcher_count"`
	Read         []struct {
		User           chat.User `json:"user"`
		UnreadMessages int       `json:"unread_messages"`
	} `json:"read"`
}

type QueryChannelsResponse struct {
	Channels []ChannelState `json:"channels"`
	Duration string         `json:"duration"`
}
