package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kdf-swap-tracker/internal/observability"
)

// DefaultPriceAPI is the CoinGecko simple price endpoint.
const DefaultPriceAPI = "https://api.coingecko.com/api/v3/simple/price"

// Cache holds USD prices for the symbols the aggregator has asked about and
// refreshes them in the background. A failed refresh keeps the previous
// snapshot. Safe for concurrent use.
type Cache struct {
	config   *CoinConfig
	apiURL   string
	client   *http.Client
	logger   *zap.Logger
	interval time.Duration

	mu     sync.RWMutex
	prices map[string]float64
	needed map[string]struct{}
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	Config   *CoinConfig
	Logger   *zap.Logger
	Interval time.Duration // defaults to 10 minutes
	APIURL   string        // defaults to DefaultPriceAPI
	Client   *http.Client
}

// NewCache creates a price cache.
func NewCache(opts CacheOptions) *Cache {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultPriceAPI
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		// A missing coin configuration degrades every lookup to a miss
		// instead of panicking on refresh.
		opts.Config = &CoinConfig{symbolToID: map[string]string{}}
	}
	return &Cache{
		config:   opts.Config,
		apiURL:   opts.APIURL,
		client:   opts.Client,
		logger:   opts.Logger,
		interval: opts.Interval,
		prices:   make(map[string]float64),
		needed:   make(map[string]struct{}),
	}
}

// Price returns the cached USD price for a symbol. An unknown symbol misses
// but is remembered so the next refresh fetches it.
func (c *Cache) Price(symbol string) (float64, bool) {
	sym := strings.ToUpper(symbol)
	c.mu.Lock()
	c.needed[sym] = struct{}{}
	p, ok := c.prices[sym]
	c.mu.Unlock()
	return p, ok
}

// RegisterSymbols marks symbols as wanted ahead of the first request.
func (c *Cache) RegisterSymbols(symbols ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		c.needed[strings.ToUpper(s)] = struct{}{}
	}
}

// Run refreshes the cache on the configured interval until the context is
// cancelled. One refresh runs immediately at startup.
func (c *Cache) Run(ctx context.Context) error {
	c.refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Cache) refresh(ctx context.Context) {
	c.mu.RLock()
	symbols := make([]string, 0, len(c.needed))
	for s := range c.needed {
		symbols = append(symbols, s)
	}
	c.mu.RUnlock()
	if len(symbols) == 0 {
		return
	}

	idsBySymbol := make(map[string]string, len(symbols))
	idSet := make(map[string]struct{})
	for _, sym := range symbols {
		if id, ok := c.config.ID(sym); ok {
			idsBySymbol[sym] = id
			idSet[id] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := c.fetch(ctx, ids)
	if err != nil {
		observability.DefaultMetrics.PriceRefreshErrors.Inc()
		c.logger.Warn("price refresh failed, keeping previous snapshot", zap.Error(err))
		return
	}

	c.mu.Lock()
	for sym, id := range idsBySymbol {
		if usd, ok := data[id]["usd"]; ok {
			c.prices[sym] = usd
		}
	}
	c.mu.Unlock()
	observability.DefaultMetrics.PriceRefreshes.Inc()
}

func (c *Cache) fetch(ctx context.Context, ids []string) (map[string]map[string]float64, error) {
	endpoint := fmt.Sprintf("%s?ids=%s&vs_currencies=usd",
		c.apiURL, url.QueryEscape(strings.Join(ids, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api returned status %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read price response: %w", err)
	}
	var data map[string]map[string]float64
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}
	return data, nil
}
