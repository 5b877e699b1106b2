package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	coingeckoAPI = "https://api.coingecko.com/api/v3"
	coinID       = "ethereum"
)

// CoinGeckoClient client for CoinGecko API
type CoinGeckoClient struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoClient creates a new CoinGecko client.
// An empty baseURL uses the public API.
func NewCoinGeckoClient(baseURL string) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoAPI
	}
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetETHRate gets the ETH price in the given fiat currency (e.g. "usd"), 2 decimals
func (c *CoinGeckoClient) GetETHRate(ctx context.Context, fiat string) (string, error) {
	fiat = strings.ToLower(fiat)
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", fiat)
	reqURL := fmt.Sprintf("%s/simple/price?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get rate: status %d", resp.StatusCode)
	}

	// {"ethereum": {"usd": 3456.78}}
	var priceResp map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return "", fmt.Errorf("failed to decode rate: %w", err)
	}

	price, ok := priceResp[coinID][fiat]
	if !ok {
		return "", fmt.Errorf("no %s rate in response", fiat)
	}
	return strconv.FormatFloat(price, 'f', 2, 64), nil
}
