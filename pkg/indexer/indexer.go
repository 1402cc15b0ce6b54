// Package indexer drives the backfill and live-tail traversal that turns
// chainweb headers into stored blocks, transactions, events, and
// transfers (spec §4.5, §4.6, §4.7), grounded on original_source/
// indexer.rs's Indexer struct and traversal loop.
package indexer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"chainweb-indexer/pkg/chainwebclient"
	"chainweb-indexer/pkg/errs"
	"chainweb-indexer/pkg/store"
)

// Config is the indexer's fixed concurrency policy (spec §5): at most
// ChainConcurrency chains traversed in flight, and at most PollConcurrency
// poll requests outstanding at once, one request key per call.
type Config struct {
	ChainConcurrency int
	PollConcurrency  int
}

// DefaultConfig returns the policy spec §5 fixes: 4 and 10.
func DefaultConfig() Config {
	return Config{ChainConcurrency: 4, PollConcurrency: 10}
}

// Indexer coordinates a Client and a Store to run backfill and live-tail
// indexing. It holds no retry policy of its own beyond the traversal
// loop's fixed-point convergence (spec §4.5, §7).
type Indexer struct {
	client chainwebclient.Client
	store  store.Store
	log    *logrus.Logger
	cfg    Config

	chainSem *semaphore.Weighted
	pollSem  *semaphore.Weighted
}

// New builds an Indexer against client and st, using cfg's concurrency
// policy. A nil logger gets a default logrus.Logger.
func New(client chainwebclient.Client, st store.Store, cfg Config, log *logrus.Logger) *Indexer {
	if log == nil {
		log = logrus.New()
	}
	if cfg.ChainConcurrency <= 0 {
		cfg.ChainConcurrency = DefaultConfig().ChainConcurrency
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = DefaultConfig().PollConcurrency
	}
	return &Indexer{
		client:   client,
		store:    st,
		log:      log,
		cfg:      cfg,
		chainSem: semaphore.NewWeighted(int64(cfg.ChainConcurrency)),
		pollSem:  semaphore.NewWeighted(int64(cfg.PollConcurrency)),
	}
}

// Backfill indexes every chain reported by the current cut, from each
// chain's existing stored range out to genesis and up to the cut's tip,
// running up to cfg.ChainConcurrency chains concurrently (spec §4.5,
// §5).
func (ix *Indexer) Backfill(ctx context.Context) error {
	cut, err := ix.client.GetCut(ctx)
	if err != nil {
		return err
	}

	allBounds, err := ix.getAllBounds(ctx, cut)
	if err != nil {
		return err
	}

	errc := make(chan error, len(allBounds))
	for chain, boundsList := range allBounds {
		chain, boundsList := chain, boundsList
		if err := ix.chainSem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer ix.chainSem.Release(1)
			for _, b := range boundsList {
				if err := ix.indexChain(ctx, b, chain, false); err != nil {
					errc <- fmt.Errorf("chain %d: %w", chain, err)
					return
				}
			}
			errc <- nil
		}()
	}

	var firstErr error
	for range allBounds {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BackfillRange indexes [minHeight, maxHeight] on chain. The lower anchor
// is fetched at minHeight-1 so that the branch query's strictly-greater
// semantics include minHeight itself (spec §4.5, mirroring
// backfill_range's `min_height - 1` adjustment).
func (ix *Indexer) BackfillRange(ctx context.Context, minHeight, maxHeight int64, chain chainwebclient.ChainID, force bool) error {
	cut, err := ix.client.GetCut(ctx)
	if err != nil {
		return err
	}
	entry, ok := cut.Hashes[chain]
	if !ok {
		return fmt.Errorf("chain %d not present in current cut", chain)
	}

	lowerAnchorHeight := minHeight - 1
	lowerHeaders, err := ix.client.GetHeaderBranch(ctx, chain, chainwebclient.Bounds{Upper: []chainwebclient.Hash{entry.Hash}}, &lowerAnchorHeight)
	if err != nil {
		return err
	}
	upperHeaders, err := ix.client.GetHeaderBranch(ctx, chain, chainwebclient.Bounds{Upper: []chainwebclient.Hash{entry.Hash}}, &maxHeight)
	if err != nil {
		return err
	}

	bounds := chainwebclient.Bounds{}
	if h := lastHash(lowerHeaders); h != "" {
		bounds.Lower = []chainwebclient.Hash{h}
	}
	if h := lastHash(upperHeaders); h != "" {
		bounds.Upper = []chainwebclient.Hash{h}
	} else {
		bounds.Upper = []chainwebclient.Hash{entry.Hash}
	}

	return ix.indexChain(ctx, bounds, chain, force)
}

func lastHash(headers []chainwebclient.BlockHeader) chainwebclient.Hash {
	if len(headers) == 0 {
		return ""
	}
	return headers[len(headers)-1].Hash
}

// indexChain repeatedly fetches header branch pages for chain within
// bounds, processing each page, until the node reports no further
// headers or the bounds stop advancing (a fixed point — spec §4.5,
// §7/§8 "traversal converges").
func (ix *Indexer) indexChain(ctx context.Context, bounds chainwebclient.Bounds, chain chainwebclient.ChainID, force bool) error {
	for {
		headers, err := ix.client.GetHeaderBranch(ctx, chain, bounds, nil)
		if err != nil {
			return err
		}
		if len(headers) == 0 {
			return nil
		}

		ix.log.WithFields(logrus.Fields{
			"chain":       chain,
			"count":       len(headers),
			"min_height":  headers[len(headers)-1].Height,
			"max_height":  headers[0].Height,
		}).Info("processing header batch")

		nextBounds := bounds
		nextBounds.Upper = []chainwebclient.Hash{headers[len(headers)-1].Hash}

		if boundsEqual(nextBounds, bounds) {
			return nil
		}

		if err := ix.ProcessHeaders(ctx, headers, chain, force); err != nil {
			return err
		}

		bounds = nextBounds
	}
}

func boundsEqual(a, b chainwebclient.Bounds) bool {
	return hashSliceEqual(a.Lower, b.Lower) && hashSliceEqual(a.Upper, b.Upper)
}

func hashSliceEqual(a, b []chainwebclient.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// getAllBounds computes, for every chain in cut, the bounds list that
// together cover what lies outside its stored range (spec §4.5): a
// forward-fill segment from the chain's current max height to the cut,
// and, if the chain's min height is above genesis, a backfill segment
// down to it. A chain with no stored blocks gets a single segment from
// genesis to the cut. A chain with exactly one of {min,max} present is
// skipped as an inconsistent state the indexer can't resolve on its own.
func (ix *Indexer) getAllBounds(ctx context.Context, cut chainwebclient.Cut) (map[chainwebclient.ChainID][]chainwebclient.Bounds, error) {
	out := make(map[chainwebclient.ChainID][]chainwebclient.Bounds, len(cut.Hashes))
	for chain, entry := range cut.Hashes {
		min, max, err := ix.store.Blocks().FindMinMaxHeight(ctx, int64(chain))
		if err != nil {
			return nil, errs.Store(err)
		}

		switch {
		case min == nil && max == nil:
			out[chain] = []chainwebclient.Bounds{{Upper: []chainwebclient.Hash{entry.Hash}}}
		case min != nil && max != nil:
			var segs []chainwebclient.Bounds
			segs = append(segs, chainwebclient.Bounds{
				Lower: []chainwebclient.Hash{chainwebclient.Hash(max.Hash)},
				Upper: []chainwebclient.Hash{entry.Hash},
			})
			if min.Height > 0 {
				segs = append(segs, chainwebclient.Bounds{
					Upper: []chainwebclient.Hash{chainwebclient.Hash(min.Hash)},
				})
			}
			out[chain] = segs
		default:
			ix.log.WithField("chain", chain).Warn("inconsistent min/max block state, skipping")
		}
	}
	return out, nil
}
