package pricer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// Market is one market-data row as returned by the provider.
type Market struct {
	Id                string    `json:"id"`
	CurrentPrice      float64   `json:"current_price"`
	PriceChange24h    float64   `json:"price_change_percentage_24h"`
	MarketCap         float64   `json:"market_cap"`
	MarketCapRank     int32     `json:"market_cap_rank"`
	TotalVolume       float64   `json:"total_volume"`
	CirculatingSupply float64   `json:"circulating_supply"`
	TotalSupply       float64   `json:"total_supply"`
	MaxSupply         float64   `json:"max_supply"`
	LastUpdated       time.Time `json:"last_updated"`
}

// MarketClient is the market-data provider contract. Ids are asset id
// strings; the provider side maps them to its own listing ids.
type MarketClient interface {
	Markets(ctx context.Context, ids []string) ([]Market, error)
	Rates(ctx context.Context) ([]types.FiatRate, error)
}

type coinGeckoClient struct {
	baseURL string
	key     string
	client  *http.Client
}

// NewCoinGeckoClient builds the CoinGecko-backed MarketClient. An empty
// key targets the public tier.
func NewCoinGeckoClient(baseURL, key string) MarketClient {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}
	return &coinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *coinGeckoClient) Markets(ctx context.Context, ids []string) ([]Market, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", strings.Join(ids, ","))
	q.Set("per_page", "250")

	var out []Market
	if err := c.get(ctx, "/api/v3/coins/markets", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *coinGeckoClient) Rates(ctx context.Context) ([]types.FiatRate, error) {
	var resp struct {
		Rates map[string]struct {
			Value float64 `json:"value"`
			Type  string  `json:"type"`
		} `json:"rates"`
	}
	if err := c.get(ctx, "/api/v3/exchange_rates", nil, &resp); err != nil {
		return nil, err
	}
	btcUSD, ok := resp.Rates["usd"]
	if !ok || btcUSD.Value == 0 {
		return nil, walleterrors.E(walleterrors.KindUpstream, errors.New("exchange rates missing usd anchor"))
	}
	// Provider rates are BTC-anchored; re-anchor to USD.
	out := make([]types.FiatRate, 0, len(resp.Rates))
	for symbol, rate := range resp.Rates {
		if rate.Type != "fiat" || rate.Value == 0 {
			continue
		}
		out = append(out, types.FiatRate{
			Symbol: strings.ToUpper(symbol),
			Rate:   rate.Value / btcUSD.Value,
		})
	}
	return out, nil
}

func (c *coinGeckoClient) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build market request")
	}
	if c.key != "" {
		req.Header.Set("x-cg-pro-api-key", c.key)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return walleterrors.E(walleterrors.KindTransient, err)
	}
	defer resp.Body.Close()
	if walleterrors.RetryableStatus(resp.StatusCode) {
		return walleterrors.E(walleterrors.KindTransient, errors.Errorf("market provider status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return walleterrors.E(walleterrors.KindUpstream, errors.Errorf("market provider status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode market response")
	}
	return nil
}
