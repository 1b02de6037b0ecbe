// REST CLIENT FOR SYMBOL SECTOR METADATA
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// SymbolProfile is the metadata record served per symbol.
type SymbolProfile struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// SectorClient fetches per-symbol sector metadata used for
// diversity-aware signal ranking. Profiles are cached in memory
// so a multi-year backtest hits the API once per symbol.
type SectorClient struct {
	apiKey        string
	baseURL       string
	defaultSector string
	http          *resty.Client

	cacheMu sync.RWMutex
	cache   map[string]SymbolProfile
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewSectorClient(config Config) *SectorClient {
	retryCount := defaultRetryAttempts - 1

	httpClient := resty.New().
		SetBaseURL(config.SectorAPIBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &SectorClient{
		apiKey:        config.SectorAPIKey,
		baseURL:       config.SectorAPIBaseURL,
		defaultSector: config.DefaultSector,
		http:          httpClient,
		cache:         make(map[string]SymbolProfile),
	}
}

// FetchProfile returns the metadata of a single symbol, hitting the
// cache first.
func (c *SectorClient) FetchProfile(ctx context.Context, symbol string) (SymbolProfile, error) {
	c.cacheMu.RLock()
	cached, ok := c.cache[symbol]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol)
	if c.apiKey != "" {
		req = req.SetHeader("X-Api-Key", c.apiKey)
	}

	resp, err := req.Get("/v1/profile")
	if err != nil {
		return SymbolProfile{}, fmt.Errorf("profile request failed for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return SymbolProfile{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var profile SymbolProfile
	if err := json.Unmarshal(resp.Body(), &profile); err != nil {
		return SymbolProfile{}, fmt.Errorf("decode profile failed for %s: %w", symbol, err)
	}
	if profile.Sector == "" {
		profile.Sector = c.defaultSector
	}

	c.cacheMu.Lock()
	c.cache[symbol] = profile
	c.cacheMu.Unlock()

	return profile, nil
}

// FetchSectorMap resolves the sector of every requested symbol.
// A symbol whose lookup fails is mapped to the default sector instead
// of aborting the whole resolution.
func (c *SectorClient) FetchSectorMap(ctx context.Context, symbols []string) (map[string]string, error) {
	sectors := make(map[string]string, len(symbols))

	for _, symbol := range symbols {
		profile, err := c.FetchProfile(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			logger.WithFields(map[string]interface{}{
				"component": "SectorClient",
				"symbol":    symbol,
			}).WithError(err).Warn("Sector lookup failed, using default sector")

			sectors[symbol] = c.defaultSector
			continue
		}
		sectors[symbol] = profile.Sector
	}

	return sectors, nil
}
