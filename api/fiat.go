package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// FiatQuote is one provider's offer for buying an asset with fiat.
type FiatQuote struct {
	Provider     string  `json:"provider"`
	AssetId      string  `json:"asset_id"`
	FiatAmount   float64 `json:"fiat_amount"`
	FiatCurrency string  `json:"fiat_currency"`
	CryptoAmount float64 `json:"crypto_amount"`
}

// QuoteProvider is one external fiat on-ramp. Implementations live
// outside this package; the API only aggregates.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, assetId types.AssetId, fiatAmount float64, currency string) (FiatQuote, error)
}

func (s *Server) handleFiatQuotes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	assetId, err := types.ParseAssetId(ps.ByName("asset"))
	if err != nil {
		writeError(w, walleterrors.BadRequest("bad asset id"))
		return
	}
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount <= 0 {
		writeError(w, walleterrors.BadRequest("bad amount"))
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = "USD"
	}

	cacheKey := cache.FiatQuote(ps.ByName("asset") + ":" + r.URL.Query().Get("amount") + ":" + currency)
	var quotes []FiatQuote
	if s.cacher != nil {
		if err := s.cacher.Get(cacheKey, &quotes); err == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
			return
		}
	}

	quotes = s.aggregateQuotes(r.Context(), assetId, amount, currency)
	if s.cacher != nil {
		if err := s.cacher.Set(cacheKey, quotes); err != nil {
			logger.Debugw("quote cache write failed", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

// aggregateQuotes fans out to every provider concurrently; failed
// providers are logged and skipped. Best offer first.
func (s *Server) aggregateQuotes(ctx context.Context, assetId types.AssetId, amount float64, currency string) []FiatQuote {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	quotes := make([]FiatQuote, 0, len(s.quotes))
	for _, provider := range s.quotes {
		wg.Add(1)
		go func(p QuoteProvider) {
			defer wg.Done()
			quote, err := p.Quote(ctx, assetId, amount, currency)
			if err != nil {
				logger.Warnw("quote provider failed", "provider", p.Name(), "err", err)
				return
			}
			mu.Lock()
			quotes = append(quotes, quote)
			mu.Unlock()
		}(provider)
	}
	wg.Wait()

	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].CryptoAmount > quotes[j].CryptoAmount
	})
	return quotes
}

// fiatWebhookBody is the provider order-update payload.
type fiatWebhookBody struct {
	OrderId      string  `json:"order_id"`
	Status       string  `json:"status"`
	WalletId     int64   `json:"wallet_id"`
	AssetId      string  `json:"asset_id"`
	FiatAmount   float64 `json:"fiat_amount"`
	FiatCurrency string  `json:"fiat_currency"`
}

func (s *Server) handleFiatWebhook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	provider := ps.ByName("provider")
	var body fiatWebhookBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, walleterrors.BadRequest("malformed webhook body"))
		return
	}
	if body.OrderId == "" || body.Status == "" {
		writeError(w, walleterrors.BadRequest("order_id and status are required"))
		return
	}

	err := s.store.UpdateFiatTransaction(provider, body.OrderId, body.Status, body.AssetId, body.FiatAmount, body.FiatCurrency)
	if err != nil {
		writeError(w, err)
		return
	}

	if body.WalletId != 0 && s.events != nil {
		event := types.StreamEvent{
			Type: types.StreamEventFiatWebhook,
			FiatWebhook: &types.FiatWebhookEvent{
				Provider: provider,
				OrderId:  body.OrderId,
				Status:   body.Status,
			},
		}
		if err := s.events.PublishWalletEvent(body.WalletId, event); err != nil {
			logger.Warnw("fiat webhook event publish failed", "order", body.OrderId, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
