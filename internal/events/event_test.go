package events

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

// headerOnly embeds Header and has every accessor, but is not a variant.
type headerOnly struct{ Header }

func (*headerOnly) ChannelID() (chat.ChannelID, bool) { return chat.ChannelID{}, false }
func (*headerOnly) Channel() *chat.Channel { return nil }
func (*headerOnly) User() *chat.User { return nil }

func TestEmbeddingHeaderDoesNotMakeAnEvent(t *testing.T) {
	var v any = &headerOnly{Header{Type: KindMessageNew}}
	_, ok := v.(Event)
	assert.Equal(t, ok, false)

	v = &MessageNewEvent{Header: Header{Type: KindMessageNew}}
	_, ok = v.(Event)
	assert.Equal(t, ok, true)
}
