// Package insight is a minimal client for insight-style block explorer APIs,
// used to detect registration fee payments to the competition address.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one explorer request.
const DefaultTimeout = 15 * time.Second

// Tx is one transaction as reported by the explorer.
type Tx struct {
	TxID string `json:"txid"`
	Vout []Vout `json:"vout"`
}

// Vout is one transaction output. Value is kept as the explorer's decimal
// string so fee amounts can be compared exactly at 8 decimals.
type Vout struct {
	Value        string       `json:"value"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// ScriptPubKey carries the addresses an output pays to.
type ScriptPubKey struct {
	Addresses []string `json:"addresses"`
}

// PaysTo reports whether the output pays the given address.
func (v Vout) PaysTo(address string) bool {
	for _, a := range v.ScriptPubKey.Addresses {
		if a == address {
			return true
		}
	}
	return false
}

// Client queries an insight API. Safe for concurrent use.
type Client struct {
	baseURL string
	apiPath string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a client for the explorer at baseURL with the given API
// path prefix (e.g. "insight-api-komodo").
func NewClient(baseURL, apiPath string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiPath: strings.Trim(apiPath, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// txsResponse is the envelope of the /txs endpoint.
type txsResponse struct {
	Txs []Tx `json:"txs"`
}

// TxsForAddress returns one page of transactions involving the address,
// newest first. Transport errors are retried once.
func (c *Client) TxsForAddress(ctx context.Context, address string, page int) ([]Tx, error) {
	endpoint := fmt.Sprintf("%s/%s/txs?address=%s&pageNum=%d",
		c.baseURL, c.apiPath, url.QueryEscape(address), page)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		// One retry covers transient explorer hiccups; the poller comes
		// back on its own schedule anyway.
		body, err = c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
	}

	var resp txsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	return resp.Txs, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build explorer request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read explorer response: %w", err)
	}
	return body, nil
}
