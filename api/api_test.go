package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

type fakeStore struct {
	publicKeys map[string]string

	searchQuery  string
	searchChains []types.Chain
	searchLimit  int
	assets       []types.Asset

	assetIds  []string
	walletIds []int64

	fiatCalls []string
}

func (s *fakeStore) GetDevicePublicKey(deviceId string) (string, error) {
	key, ok := s.publicKeys[deviceId]
	if !ok {
		return "", walleterrors.NotFound("device")
	}
	return key, nil
}

func (s *fakeStore) SearchAssets(query string, chains []types.Chain, limit, offset int) ([]types.Asset, error) {
	s.searchQuery, s.searchChains, s.searchLimit = query, chains, limit
	return s.assets, nil
}

func (s *fakeStore) GetAssetIdsByDeviceId(string) ([]string, error) { return s.assetIds, nil }
func (s *fakeStore) WalletIdsByDeviceId(string) ([]int64, error)    { return s.walletIds, nil }

func (s *fakeStore) UpdateFiatTransaction(provider, orderId, status, _ string, _ float64, _ string) error {
	s.fiatCalls = append(s.fiatCalls, provider+"/"+orderId+"/"+status)
	return nil
}

type fakeEvents struct {
	walletIds []int64
	events    []types.StreamEvent
}

func (e *fakeEvents) PublishWalletEvent(walletId int64, event types.StreamEvent) error {
	e.walletIds = append(e.walletIds, walletId)
	e.events = append(e.events, event)
	return nil
}

type fakeQuoteProvider struct {
	name  string
	quote FiatQuote
	err   error
}

func (p *fakeQuoteProvider) Name() string { return p.name }
func (p *fakeQuoteProvider) Quote(context.Context, types.AssetId, float64, string) (FiatQuote, error) {
	return p.quote, p.err
}

type fakeImages struct {
	image NftImage
	err   error
}

func (f *fakeImages) FetchPreview(context.Context, string) (NftImage, error) {
	return f.image, f.err
}

type fakeSocket struct{ walletIds []int64 }

func (f *fakeSocket) ServeWS(w http.ResponseWriter, _ *http.Request, walletIds []int64) {
	f.walletIds = walletIds
	w.WriteHeader(http.StatusOK)
}

func newTestServer(t *testing.T, store *fakeStore, events *fakeEvents, quotes []QuoteProvider, images ImageSource) *httptest.Server {
	t.Helper()
	s := NewServer(":0", store, nil, events, quotes, images, &fakeSocket{}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestAssetsSearch(t *testing.T) {
	store := &fakeStore{assets: []types.Asset{{Id: types.NewAssetId(types.ChainBitcoin), Symbol: "BTC"}}}
	srv := newTestServer(t, store, nil, nil, nil)

	resp, err := http.Get(srv.URL + "/assets/search?q=bit&chains=bitcoin,ethereum&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "bit", store.searchQuery)
	assert.Equal(t, []types.Chain{types.ChainBitcoin, types.ChainEthereum}, store.searchChains)
	assert.Equal(t, 10, store.searchLimit)

	var body struct {
		Assets []types.Asset `json:"assets"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Assets, 1)
	assert.Equal(t, "BTC", body.Assets[0].Symbol)
}

func TestAssetsSearchValidation(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil, nil, nil)

	resp, err := http.Get(srv.URL + "/assets/search")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/assets/search?q=bit&chains=notachain")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func signedHeaders(t *testing.T, priv ed25519.PrivateKey, deviceId, method, path string, body []byte, ts time.Time) http.Header {
	t.Helper()
	sum := sha256.Sum256(body)
	bodyHash := hex.EncodeToString(sum[:])
	timestamp := strconv.FormatInt(ts.UnixNano()/int64(time.Millisecond), 10)
	signed := fmt.Sprintf("v1.%s.%s.%s.%s", timestamp, method, path, bodyHash)
	sig := ed25519.Sign(priv, []byte(signed))

	h := http.Header{}
	h.Set(headerDeviceId, deviceId)
	h.Set(headerTimestamp, timestamp)
	h.Set(headerBodyHash, bodyHash)
	h.Set(headerSignature, hex.EncodeToString(sig))
	return h
}

func TestAssetsByDeviceRequiresSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	store := &fakeStore{
		publicKeys: map[string]string{"dev-1": hex.EncodeToString(pub)},
		assetIds:   []string{"bitcoin", "ethereum"},
	}
	srv := newTestServer(t, store, nil, nil, nil)

	// No signature headers.
	resp, err := http.Get(srv.URL + "/assets/by_device_id/dev-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid signature.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/assets/by_device_id/dev-1", nil)
	require.NoError(t, err)
	req.Header = signedHeaders(t, priv, "dev-1", http.MethodGet, "/assets/by_device_id/dev-1", nil, time.Now())
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AssetIds []string `json:"asset_ids"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"bitcoin", "ethereum"}, body.AssetIds)
}

func TestAuthenticatorRejectsTampering(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	store := &fakeStore{publicKeys: map[string]string{"dev-1": hex.EncodeToString(pub)}}
	auth := NewAuthenticator(store)

	newRequest := func(h http.Header) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/assets/by_device_id/dev-1", nil)
		req.Header = h
		return req
	}

	valid := signedHeaders(t, priv, "dev-1", http.MethodGet, "/assets/by_device_id/dev-1", nil, time.Now())
	deviceId, err := auth.Verify(newRequest(valid), nil)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", deviceId)

	// Stale timestamp.
	stale := signedHeaders(t, priv, "dev-1", http.MethodGet, "/assets/by_device_id/dev-1", nil, time.Now().Add(-6*time.Minute))
	_, err = auth.Verify(newRequest(stale), nil)
	assert.Equal(t, walleterrors.KindUnauthorized, walleterrors.KindOf(err))

	// Tampered timestamp invalidates the signature.
	tampered := signedHeaders(t, priv, "dev-1", http.MethodGet, "/assets/by_device_id/dev-1", nil, time.Now())
	tampered.Set(headerTimestamp, strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond)+1, 10))
	_, err = auth.Verify(newRequest(tampered), nil)
	assert.Equal(t, walleterrors.KindUnauthorized, walleterrors.KindOf(err))

	// Wrong body hash.
	badHash := signedHeaders(t, priv, "dev-1", http.MethodGet, "/assets/by_device_id/dev-1", nil, time.Now())
	badHash.Set(headerBodyHash, "deadbeef")
	_, err = auth.Verify(newRequest(badHash), nil)
	assert.Equal(t, walleterrors.KindUnauthorized, walleterrors.KindOf(err))

	// Unknown device.
	unknown := signedHeaders(t, priv, "dev-2", http.MethodGet, "/assets/by_device_id/dev-1", nil, time.Now())
	_, err = auth.Verify(newRequest(unknown), nil)
	assert.Equal(t, walleterrors.KindUnauthorized, walleterrors.KindOf(err))
}

func TestFiatWebhook(t *testing.T) {
	store := &fakeStore{}
	events := &fakeEvents{}
	srv := newTestServer(t, store, events, nil, nil)

	body := `{"order_id":"o-1","status":"completed","wallet_id":7,"asset_id":"bitcoin","fiat_amount":100,"fiat_currency":"USD"}`
	resp, err := http.Post(srv.URL+"/fiat/webhooks/moonpay", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"moonpay/o-1/completed"}, store.fiatCalls)
	require.Len(t, events.events, 1)
	assert.Equal(t, []int64{7}, events.walletIds)
	assert.Equal(t, types.StreamEventFiatWebhook, events.events[0].Type)
	require.NotNil(t, events.events[0].FiatWebhook)
	assert.Equal(t, "moonpay", events.events[0].FiatWebhook.Provider)
}

func TestFiatWebhookValidation(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store, &fakeEvents{}, nil, nil)

	resp, err := http.Post(srv.URL+"/fiat/webhooks/moonpay", "application/json", bytes.NewBufferString(`{"status":"completed"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, store.fiatCalls)
}

func TestFiatQuotesAggregation(t *testing.T) {
	quotes := []QuoteProvider{
		&fakeQuoteProvider{name: "a", quote: FiatQuote{Provider: "a", CryptoAmount: 0.001}},
		&fakeQuoteProvider{name: "b", quote: FiatQuote{Provider: "b", CryptoAmount: 0.002}},
		&fakeQuoteProvider{name: "c", err: walleterrors.E(walleterrors.KindUpstream, assert.AnError)},
	}
	srv := newTestServer(t, &fakeStore{}, nil, quotes, nil)

	resp, err := http.Get(srv.URL + "/fiat/quotes/bitcoin?amount=100&currency=USD")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Quotes []FiatQuote `json:"quotes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Quotes, 2, "failed provider is skipped")
	assert.Equal(t, "b", body.Quotes[0].Provider, "best offer first")
}

func TestNftImagePreviewHeaders(t *testing.T) {
	images := &fakeImages{image: NftImage{
		Body:         []byte("png-bytes"),
		ContentType:  "image/png",
		LastModified: "Wed, 01 May 2024 00:00:00 GMT",
	}}
	srv := newTestServer(t, &fakeStore{}, nil, nil, images)

	resp, err := http.Get(srv.URL + "/nft/assets/nft-1/image_preview")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, defaultImageCacheControl, resp.Header.Get("Cache-Control"))
	assert.Equal(t, "Wed, 01 May 2024 00:00:00 GMT", resp.Header.Get("Last-Modified"))
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestNftImagePreviewUpstreamCacheControl(t *testing.T) {
	images := &fakeImages{image: NftImage{Body: []byte("x"), CacheControl: "max-age=60"}}
	srv := newTestServer(t, &fakeStore{}, nil, nil, images)

	resp, err := http.Get(srv.URL + "/nft/assets/nft-1/image_preview")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "max-age=60", resp.Header.Get("Cache-Control"))
}

func TestPricesPassesWalletIds(t *testing.T) {
	store := &fakeStore{walletIds: []int64{1, 2}}
	socket := &fakeSocket{}
	s := NewServer(":0", store, nil, nil, nil, nil, socket, func(w http.ResponseWriter, _ *http.Request) {})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/prices", nil)
	require.NoError(t, err)
	req.Header.Set(headerDeviceId, "dev-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []int64{1, 2}, socket.walletIds)
}
