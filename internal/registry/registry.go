// Package registry tracks which channels this client is watching.
//
// Entries are non-owning: each is an opaque handle minted by the store that
// owns the channel entity. A handle whose entity was released is "dead" and
// is dropped on the next Prune.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

// Handle is an opaque reference to a channel entity owned elsewhere.
type Handle string

// NewHandle mints a random handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// Resolver answers whether a handle still points at a live entity.
type Resolver interface {
	Resolves(ctx context.Context, h Handle) (bool, error)
}

type Registry struct {
	resolver Resolver
	log      *slog.Logger

	mu      sync.RWMutex
	watched map[chat.ChannelID]map[Handle]struct{}
}

func New(resolver Resolver, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		resolver: resolver,
		log:      log,
		watched:  make(map[chat.ChannelID]map[Handle]struct{}),
	}
}

// Watch adds h to the handles watching cid.
func (r *Registry) Watch(cid chat.ChannelID, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watched[cid] == nil {
		r.watched[cid] = make(map[Handle]struct{})
	}
	r.watched[cid][h] = struct{}{}
}

// Unwatch removes h from cid. It reports whether cid has no handles left.
func (r *Registry) Unwatch(cid chat.ChannelID, h Handle) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles, ok := r.watched[cid]
	if !ok {
		return true
	}
	delete(handles, h)
	if len(handles) == 0 {
		delete(r.watched, cid)
		return true
	}
	return false
}

// Has reports whether any handle is registered for cid.
func (r *Registry) Has(cid chat.ChannelID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watched[cid]) > 0
}

// handles returns the handles registered for cid.
func (r *Registry) handles(cid chat.ChannelID) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.watched[cid]))
	for h := range r.watched[cid] {
		out = append(out, h)
	}
	return out
}

// ChannelIDs returns the distinct watched identifiers in a stable order.
func (r *Registry) ChannelIDs() []chat.ChannelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.ChannelID, 0, len(r.watched))
	for cid := range r.watched {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Len returns the number of watched channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watched)
}

// Prune drops every handle the resolver no longer resolves and returns how
// many were removed. A resolver error keeps the handle.
func (r *Registry) Prune(ctx context.Context) int {
	if r.resolver == nil {
		return 0
	}

	type entry struct {
		cid chat.ChannelID
		h   Handle
	}
	r.mu.RLock()
	var all []entry
	for cid, handles := range r.watched {
		for h := range handles {
			all = append(all, entry{cid, h})
		}
	}
	r.mu.RUnlock()

	// Resolve outside the lock; the resolver may do I/O.
	var dead []entry
	for _, e := range all {
		ok, err := r.resolver.Resolves(ctx, e.h)
		if err != nil {
			r.log.Warn("registry resolve failed", "cid", e.cid.String(), "handle", string(e.h), "err", err)
			continue
		}
		if !ok {
			dead = append(dead, e)
		}
	}

	for _, e := range dead {
		r.Unwatch(e.cid, e.h)
	}
	if len(dead) > 0 {
		r.log.Debug("registry pruned dead handles", "count", len(dead))
	}
	return len(dead)
}
