package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

type fakeResolver struct {
	live   map[Handle]bool
	failOn Handle
}

func (f *fakeResolver) Resolves(_ context.Context, h Handle) (bool, error) {
	if h == f.failOn {
		return false, errors.New("store unavailable")
	}
	return f.live[h], nil
}

func cid(s string) chat.ChannelID {
	c, err := chat.ParseChannelID(s)
	if err != nil {
		panic(err)
	}
	return c
}

func TestRegistryWatchUnwatch(t *testing.T) {
	r := New(nil, nil)
	general := cid("messaging:general")
	h1, h2 := NewHandle(), NewHandle()
	assert.NotEqual(t, h1, h2)

	r.Watch(general, h1)
	r.Watch(general, h2)
	r.Watch(general, h2)
	assert.Equal(t, r.Has(general), true)
	assert.Equal(t, r.Len(), 1)
	assert.Equal(t, len(r.handles(general)), 2)

	assert.Equal(t, r.Unwatch(general, h1), false)
	assert.Equal(t, r.Has(general), true)
	assert.Equal(t, r.Unwatch(general, h2), true)
	assert.Equal(t, r.Has(general), false)
	assert.Equal(t, r.Len(), 0)

	assert.Equal(t, r.Unwatch(cid("messaging:nope"), h1), true)
}

func TestRegistryChannelIDsSorted(t *testing.T) {
	r := New(nil, nil)
	for _, s := range []string{"team:b", "messaging:z", "messaging:a", "team:a"} {
		r.Watch(cid(s), NewHandle())
	}

	var got []string
	for _, c := range r.ChannelIDs() {
		got = append(got, c.String())
	}
	assert.Equal(t, got, []string{"messaging:a", "messaging:z", "team:a", "team:b"})
}

func TestRegistryPrune(t *testing.T) {
	live, dead, flaky := NewHandle(), NewHandle(), NewHandle()
	res := &fakeResolver{live: map[Handle]bool{live: true}, failOn: flaky}
	r := New(res, nil)

	general, random, other := cid("messaging:general"), cid("messaging:random"), cid("messaging:other")
	r.Watch(general, live)
	r.Watch(general, dead)
	r.Watch(random, NewHandle())
	r.Watch(other, flaky)

	assert.Equal(t, r.Prune(context.Background()), 2)
	assert.Equal(t, r.handles(general), []Handle{live})
	assert.Equal(t, r.Has(random), false)
	// Resolver errors keep the handle.
	assert.Equal(t, r.Has(other), true)
	assert.Equal(t, r.Len(), 2)
}

func TestRegistryPruneWithoutResolver(t *testing.T) {
	r := New(nil, nil)
	r.Watch(cid("messaging:general"), NewHandle())
	assert.Equal(t, r.Prune(context.Background()), 0)
	assert.Equal(t, r.Len(), 1)
}
