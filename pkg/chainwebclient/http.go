package chainwebclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"chainweb-indexer/pkg/errs"
)

// HTTPClient is the concrete Client implementation that talks to a real
// chainweb node over HTTP(S), with the headers stream carried over SSE.
// It holds no retry policy and no connection cache beyond the one
// *http.Client it's given — bounded concurrency and retry-by-retraversal
// are the indexer's responsibility (spec §5, §7).
type HTTPClient struct {
	baseURL        string
	networkVersion string
	httpClient     *http.Client
	log            *logrus.Logger
}

// NewHTTPClient builds an HTTPClient against baseURL (e.g.
// "https://api.chainweb.com") for the given chainweb network version
// (e.g. "mainnet01").
func NewHTTPClient(baseURL, networkVersion string, httpClient *http.Client, log *logrus.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logrus.New()
	}
	return &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		networkVersion: networkVersion,
		httpClient:     httpClient,
		log:            log,
	}
}

func (c *HTTPClient) chainPath(chain ChainID, suffix string) string {
	return fmt.Sprintf("%s/chainweb/0.0/%s/chain/%d/%s", c.baseURL, c.networkVersion, chain, suffix)
}

func (c *HTTPClient) do(ctx context.Context, method, rawURL string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return errs.Fetch(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Fetch(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limited := io.LimitReader(resp.Body, 2048)
		msg, _ := io.ReadAll(limited)
		return errs.Fetch(fmt.Errorf("%s %s: status %d: %s", method, rawURL, resp.StatusCode, string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Decode("response_body", err)
	}
	return nil
}

// GetCut fetches the current cut from /chainweb/0.0/<version>/cut.
func (c *HTTPClient) GetCut(ctx context.Context) (Cut, error) {
	rawURL := fmt.Sprintf("%s/chainweb/0.0/%s/cut", c.baseURL, c.networkVersion)
	var wire struct {
		Hashes map[string]CutEntry `json:"hashes"`
	}
	if err := c.do(ctx, http.MethodGet, rawURL, nil, &wire); err != nil {
		return Cut{}, err
	}
	cut := Cut{Hashes: make(map[ChainID]CutEntry, len(wire.Hashes))}
	for k, v := range wire.Hashes {
		n, err := strconv.Atoi(k)
		if err != nil {
			return Cut{}, errs.Decode("hashes_key", err)
		}
		cut.Hashes[ChainID(n)] = v
	}
	return cut, nil
}

// GetHeaderBranch pages through /header/branch, following `next` cursors
// until the node returns an empty page or no `next` cursor, and returns
// every item gathered in
// the order the node produced it (highest first).
func (c *HTTPClient) GetHeaderBranch(ctx context.Context, chain ChainID, bounds Bounds, minHeight *int64) ([]BlockHeader, error) {
	reqBody := struct {
		Lower []Hash `json:"lower"`
		Upper []Hash `json:"upper"`
	}{Lower: bounds.Lower, Upper: bounds.Upper}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errs.Decode("branch_request", err)
	}

	var all []BlockHeader
	next := ""
	for {
		q := url.Values{}
		if minHeight != nil {
			q.Set("minheight", strconv.FormatInt(*minHeight, 10))
		}
		if next != "" {
			q.Set("next", next)
		}
		rawURL := c.chainPath(chain, "header/branch")
		if len(q) > 0 {
			rawURL += "?" + q.Encode()
		}

		var page headerBranchPage
		if err := c.do(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)), &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.Next == nil || *page.Next == "" || len(page.Items) == 0 {
			break
		}
		next = *page.Next
	}
	return all, nil
}

// GetPayloadBatch fetches payloads for payloadHashes via the
// payload/batch endpoint.
func (c *HTTPClient) GetPayloadBatch(ctx context.Context, chain ChainID, payloadHashes []string) ([]BlockPayload, error) {
	if len(payloadHashes) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(payloadHashes)
	if err != nil {
		return nil, errs.Decode("payload_batch_request", err)
	}
	rawURL := c.chainPath(chain, "payload/batch")
	var out []BlockPayload
	if err := c.do(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Poll fetches transaction results for requestKeys via the pact
// /api/v1/poll endpoint.
func (c *HTTPClient) Poll(ctx context.Context, requestKeys []string, chain ChainID) (map[string]PactTransactionResult, error) {
	if len(requestKeys) == 0 {
		return map[string]PactTransactionResult{}, nil
	}
	reqBody := struct {
		RequestKeys []string `json:"requestKeys"`
	}{RequestKeys: requestKeys}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errs.Decode("poll_request", err)
	}
	rawURL := c.chainPath(chain, "pact/api/v1/poll")
	var out map[string]PactTransactionResult
	if err := c.do(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HeadersStream opens the node's SSE header feed at
// /chainweb/0.0/<version>/header/updates.
func (c *HTTPClient) HeadersStream(ctx context.Context) (<-chan BlockHeaderEvent, <-chan error, error) {
	rawURL := fmt.Sprintf("%s/chainweb/0.0/%s/header/updates", c.baseURL, c.networkVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, errs.Fetch(err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, errs.Fetch(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		limited := io.LimitReader(resp.Body, 2048)
		msg, _ := io.ReadAll(limited)
		return nil, nil, errs.Fetch(fmt.Errorf("GET %s: status %d: %s", rawURL, resp.StatusCode, string(msg)))
	}

	events := make(chan BlockHeaderEvent)
	errc := make(chan error, 1)
	go func() {
		defer resp.Body.Close()
		defer close(events)
		defer close(errc)
		readSSE(ctx, resp.Body, c.log, events, errc)
	}()
	return events, errc, nil
}
