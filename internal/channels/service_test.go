package channels

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/db"
	"github.com/clk-66/spectrus-realtime/internal/registry"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "channels.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewService(database)
}

var general = chat.ChannelID{Type: "messaging", ID: "general"}

func TestAttachReleaseResolves(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	h, err := s.Attach(ctx, general)
	assert.Equal(t, err, nil)
	assert.NotEqual(t, h, registry.Handle(""))

	ok, err := s.Resolves(ctx, h)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)

	// A second attach reuses the row and mints a distinct handle.
	h2, err := s.Attach(ctx, general)
	assert.Equal(t, err, nil)
	assert.NotEqual(t, h, h2)

	assert.Equal(t, s.Release(ctx, h), nil)
	ok, err = s.Resolves(ctx, h)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, false)
	assert.Equal(t, s.Release(ctx, h), nil)

	ok, _ = s.Resolves(ctx, h2)
	assert.Equal(t, ok, true)
}

func TestStoreDrivesRegistryPrune(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	r := registry.New(s, nil)

	h, err := s.Attach(ctx, general)
	assert.Equal(t, err, nil)
	r.Watch(general, h)
	assert.Equal(t, r.Prune(ctx), 0)

	assert.Equal(t, s.Release(ctx, h), nil)
	assert.Equal(t, r.Prune(ctx), 1)
	assert.Equal(t, r.Has(general), false)
}

func TestUpsertKeepsCounters(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Attach(ctx, general)
	assert.Equal(t, err, nil)
	assert.Equal(t, s.SetWatcherCount(ctx, general, 3), nil)
	assert.Equal(t, s.SetUnread(ctx, general, 2), nil)

	assert.Equal(t, s.Upsert(ctx, chat.Channel{CID: general, Name: "General", MemberCount: 10}), nil)

	st, err := s.Get(ctx, general)
	assert.Equal(t, err, nil)
	assert.Equal(t, *st, State{CID: general, Name: "General", MemberCount: 10, WatcherCount: 3, UnreadCount: 2})
}

func TestCountersOnUnknownChannel(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Get(ctx, general)
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
	assert.Equal(t, errors.Is(s.SetWatcherCount(ctx, general, 1), ErrNotFound), true)
	assert.Equal(t, errors.Is(s.ResetUnread(ctx, general), ErrNotFound), true)
	assert.Equal(t, errors.Is(s.Ban(ctx, general, Ban{UserID: "bob"}), ErrNotFound), true)
}

func TestResetUnread(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	random := chat.ChannelID{Type: "messaging", ID: "random"}

	for _, cid := range []chat.ChannelID{general, random} {
		_, err := s.Attach(ctx, cid)
		assert.Equal(t, err, nil)
		assert.Equal(t, s.SetUnread(ctx, cid, 4), nil)
	}

	assert.Equal(t, s.ResetUnread(ctx, general), nil)
	st, _ := s.Get(ctx, general)
	assert.Equal(t, st.UnreadCount, 0)
	st, _ = s.Get(ctx, random)
	assert.Equal(t, st.UnreadCount, 4)

	assert.Equal(t, s.ResetAllUnread(ctx), nil)
	list, err := s.List(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(list), 2)
	for _, st := range list {
		assert.Equal(t, st.UnreadCount, 0)
	}
}

func TestBans(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.Attach(ctx, general)
	assert.Equal(t, err, nil)

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, s.Ban(ctx, general, Ban{UserID: "carol", CreatedAt: created}), nil)
	assert.Equal(t, s.Ban(ctx, general, Ban{UserID: "bob", Reason: "spam", ExpiresAt: &expires, CreatedAt: created}), nil)
	// Banning again refreshes the entry.
	assert.Equal(t, s.Ban(ctx, general, Ban{UserID: "bob", Reason: "flood", ExpiresAt: &expires, CreatedAt: created}), nil)

	bans, err := s.Bans(ctx, general)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(bans), 2)
	assert.Equal(t, bans[0].UserID, "bob")
	assert.Equal(t, bans[0].Reason, "flood")
	assert.Equal(t, bans[0].ExpiresAt.Equal(expires), true)
	assert.Equal(t, bans[1].UserID, "carol")
	assert.Equal(t, bans[1].ExpiresAt == nil, true)

	removed, err := s.Unban(ctx, general, "bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, removed, true)
	removed, err = s.Unban(ctx, general, "bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, removed, false)

	bans, _ = s.Bans(ctx, general)
	assert.Equal(t, len(bans), 1)
}
