// Package chainwebtest provides a scripted chainweb.Client double for
// tests: every call is satisfied from data installed ahead of time rather
// than a real node, so indexer tests can exercise reorgs, malformed
// payloads, and traversal fixed points deterministically.
package chainwebtest

import (
	"context"
	"fmt"
	"sync"

	"chainweb-indexer/pkg/chainwebclient"
)

// Client is a fully in-memory chainwebclient.Client. Headers and payloads
// are installed per chain; Poll results are installed per request key.
// HeadersStream replays a fixed, pre-loaded event sequence.
type Client struct {
	mu sync.Mutex

	cut chainwebclient.Cut

	// headersByChain holds every known header for a chain, in the order
	// GetHeaderBranch should return them for any bounds query: the fake
	// ignores Bounds.Upper and returns this slice filtered by minHeight and
	// by the hashes listed in Bounds.Lower, since tests control exactly
	// what bounds are passed.
	headersByChain map[chainwebclient.ChainID][]chainwebclient.BlockHeader
	payloadsByHash map[string]chainwebclient.BlockPayload
	resultsByKey   map[string]chainwebclient.PactTransactionResult

	streamEvents []chainwebclient.BlockHeaderEvent
	streamErr    error

	// branchCalls lets tests assert on traversal behavior (e.g. that a
	// fixed point was reached within the expected number of calls).
	branchCalls int
}

// New returns an empty fake client.
func New() *Client {
	return &Client{
		headersByChain: make(map[chainwebclient.ChainID][]chainwebclient.BlockHeader),
		payloadsByHash: make(map[string]chainwebclient.BlockPayload),
		resultsByKey:   make(map[string]chainwebclient.PactTransactionResult),
	}
}

// SetCut installs the value GetCut returns.
func (c *Client) SetCut(cut chainwebclient.Cut) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cut = cut
}

// AddHeader appends a header to the chain's known set, highest-appended
// wins ordering (the fake always returns its set in insertion order).
func (c *Client) AddHeader(h chainwebclient.BlockHeader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headersByChain[h.ChainID] = append(c.headersByChain[h.ChainID], h)
}

// SetPayload installs the payload returned for a given payload hash.
func (c *Client) SetPayload(payloadHash string, p chainwebclient.BlockPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloadsByHash[payloadHash] = p
}

// SetResult installs the poll() result for a request key.
func (c *Client) SetResult(requestKey string, r chainwebclient.PactTransactionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultsByKey[requestKey] = r
}

// SetStream installs the fixed event sequence HeadersStream replays, and
// the terminal error (nil for a clean end) it reports afterward.
func (c *Client) SetStream(events []chainwebclient.BlockHeaderEvent, terminalErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamEvents = events
	c.streamErr = terminalErr
}

// BranchCalls reports how many times GetHeaderBranch has been called.
func (c *Client) BranchCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.branchCalls
}

func (c *Client) GetCut(ctx context.Context) (chainwebclient.Cut, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cut, nil
}

// GetHeaderBranch returns every installed header for chain whose height is
// greater than minHeight (or all of them if minHeight is nil), and whose
// hash is not in bounds.Lower's set of already-seen hashes. Real bounds
// semantics (reachability via Upper and Lower) are approximated by
// returning every installed header except the Lower hashes themselves,
// which is sufficient for the deterministic fixtures tests construct.
func (c *Client) GetHeaderBranch(ctx context.Context, chain chainwebclient.ChainID, bounds chainwebclient.Bounds, minHeight *int64) ([]chainwebclient.BlockHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branchCalls++

	excluded := make(map[chainwebclient.Hash]bool, len(bounds.Lower))
	for _, h := range bounds.Lower {
		excluded[h] = true
	}

	var out []chainwebclient.BlockHeader
	for _, h := range c.headersByChain[chain] {
		if minHeight != nil && h.Height <= *minHeight {
			continue
		}
		if excluded[h.Hash] {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (c *Client) GetPayloadBatch(ctx context.Context, chain chainwebclient.ChainID, payloadHashes []string) ([]chainwebclient.BlockPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chainwebclient.BlockPayload, 0, len(payloadHashes))
	for _, h := range payloadHashes {
		p, ok := c.payloadsByHash[h]
		if !ok {
			return nil, fmt.Errorf("chainwebtest: no payload installed for hash %q", h)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) Poll(ctx context.Context, requestKeys []string, chain chainwebclient.ChainID) (map[string]chainwebclient.PactTransactionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]chainwebclient.PactTransactionResult, len(requestKeys))
	for _, k := range requestKeys {
		if r, ok := c.resultsByKey[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

func (c *Client) HeadersStream(ctx context.Context) (<-chan chainwebclient.BlockHeaderEvent, <-chan error, error) {
	c.mu.Lock()
	events := append([]chainwebclient.BlockHeaderEvent(nil), c.streamEvents...)
	terminalErr := c.streamErr
	c.mu.Unlock()

	out := make(chan chainwebclient.BlockHeaderEvent)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, e := range events {
			select {
			case out <- e:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- terminalErr
	}()
	return out, errc, nil
}

var _ chainwebclient.Client = (*Client)(nil)
