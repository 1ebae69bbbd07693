// Package recovery re-subscribes to every watched channel after a
// reconnection so the server resumes pushing their events.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/clk-66/spectrus-realtime/internal/api"
	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/registry"
)

// DefaultBatchSize is the number of channels re-watched per query.
const DefaultBatchSize = 50

// Querier is the channel-query collaborator.
type Querier interface {
	QueryChannels(ctx context.Context, q api.ChannelsQuery) (*api.QueryChannelsResponse, error)
}

type Protocol struct {
	registry  *registry.Registry
	querier   Querier
	batchSize int
	log       *slog.Logger

	generation atomic.Uint64
	inflight   sync.WaitGroup
}

// New returns a recovery protocol. A batchSize <= 0 uses DefaultBatchSize.
func New(reg *registry.Registry, querier Querier, batchSize int, log *slog.Logger) *Protocol {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Protocol{registry: reg, querier: querier, batchSize: batchSize, log: log}
}

// Recover implements connection.Recoverer.
func (p *Protocol) Recover(ctx context.Context) {
	p.Run(ctx)
}

// Run prunes dead registry entries, then issues one watch query per batch
// of watched cids. Queries run in the background and Run returns the
// batches it issued without waiting for them. A failed batch is logged and
// does not affect the others.
func (p *Protocol) Run(ctx context.Context) [][]chat.ChannelID {
	if pruned := p.registry.Prune(ctx); pruned > 0 {
		p.log.Debug("recovery pruned dead watches", "count", pruned)
	}

	cids := p.registry.ChannelIDs()
	if len(cids) == 0 {
		return nil
	}

	gen := p.generation.Add(1)
	batches := Batches(cids, p.batchSize)
	p.log.Info("recovering watched channels", "channels", len(cids), "batches", len(batches), "generation", gen)

	for i, batch := range batches {
		p.inflight.Add(1)
		go func(i int, batch []chat.ChannelID) {
			defer p.inflight.Done()
			_, err := p.querier.QueryChannels(ctx, api.WatchQuery(batch))

			// A newer reconnection supersedes this run; its outcome no
			// longer matters.
			if p.generation.Load() != gen {
				p.log.Debug("stale recovery batch finished", "generation", gen, "batch", i, "err", err)
				return
			}
			if err != nil {
				p.log.Warn("recovery batch failed", "batch", i, "channels", len(batch), "err", err)
			}
		}(i, batch)
	}
	return batches
}

// Wait blocks until every issued batch has finished. Only shutdown and tests
// need it.
func (p *Protocol) Wait() {
	p.inflight.Wait()
}

// Batches splits cids into consecutive chunks of at most size elements.
func Batches(cids []chat.ChannelID, size int) [][]chat.ChannelID {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]chat.ChannelID
	for start := 0; start < len(cids); start += size {
		end := min(start+size, len(cids))
		out = append(out, cids[start:end:end])
	}
	return out
}
