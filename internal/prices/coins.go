// Package prices resolves USD prices for coin symbols. A coin configuration
// maps symbols to CoinGecko ids; a cache refreshes the prices of registered
// symbols on a fixed interval.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// CoinConfig maps normalized coin symbols to CoinGecko ids. Built once at
// startup from the Komodo coins configuration; read-only afterwards.
type CoinConfig struct {
	symbolToID map[string]string
}

// coinEntry is the subset of one coins_config.json entry we care about.
type coinEntry struct {
	CoingeckoID  string `json:"coingecko_id"`
	CoingeckoAlt string `json:"coingecko"`
}

// LoadCoinConfig builds the symbol map. A non-empty path wins over the URL;
// with neither usable an empty config is returned together with the error so
// the service can keep running without price enrichment.
func LoadCoinConfig(ctx context.Context, path, url string) (*CoinConfig, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return &CoinConfig{symbolToID: map[string]string{}}, fmt.Errorf("read coin config: %w", err)
		}
		return parseCoinConfig(raw)
	}
	if url == "" {
		return &CoinConfig{symbolToID: map[string]string{}}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &CoinConfig{symbolToID: map[string]string{}}, err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return &CoinConfig{symbolToID: map[string]string{}}, fmt.Errorf("fetch coin config: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &CoinConfig{symbolToID: map[string]string{}}, fmt.Errorf("fetch coin config: status %d", res.StatusCode)
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &CoinConfig{symbolToID: map[string]string{}}, fmt.Errorf("read coin config: %w", err)
	}
	return parseCoinConfig(raw)
}

func parseCoinConfig(raw []byte) (*CoinConfig, error) {
	var entries map[string]coinEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return &CoinConfig{symbolToID: map[string]string{}}, fmt.Errorf("decode coin config: %w", err)
	}
	m := make(map[string]string, len(entries))
	for sym, entry := range entries {
		id := entry.CoingeckoID
		if id == "" {
			id = entry.CoingeckoAlt
		}
		if id != "" {
			m[strings.ToUpper(sym)] = id
		}
	}
	return &CoinConfig{symbolToID: m}, nil
}

// ID returns the CoinGecko id for a symbol.
func (c *CoinConfig) ID(symbol string) (string, bool) {
	id, ok := c.symbolToID[strings.ToUpper(symbol)]
	return id, ok
}

// Len reports how many symbols have a known id.
func (c *CoinConfig) Len() int {
	return len(c.symbolToID)
}
