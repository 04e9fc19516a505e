// Package api serves the wallet-facing HTTP surface: asset search, fiat
// quotes and webhooks, NFT image previews, the price WebSocket and the
// metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

var logger = log.NewModuleLogger("api")

// Store is the persistence surface the API reads and writes.
type Store interface {
	KeySource
	SearchAssets(query string, chains []types.Chain, limit, offset int) ([]types.Asset, error)
	GetAssetIdsByDeviceId(deviceId string) ([]string, error)
	WalletIdsByDeviceId(deviceId string) ([]int64, error)
	UpdateFiatTransaction(provider, orderId, status, assetId string, fiatAmount float64, currency string) error
}

// WalletEvents publishes wallet-scoped stream events.
type WalletEvents interface {
	PublishWalletEvent(walletId int64, event types.StreamEvent) error
}

// PriceSocket upgrades /prices requests; the stream server implements it.
type PriceSocket interface {
	ServeWS(w http.ResponseWriter, r *http.Request, walletIds []int64)
}

type Server struct {
	store     Store
	cacher    *cache.Cacher
	auth      *Authenticator
	events    WalletEvents
	quotes    []QuoteProvider
	images    ImageSource
	prices    PriceSocket
	metricsFn http.HandlerFunc

	httpServer *http.Server
}

func NewServer(addr string, store Store, cacher *cache.Cacher, events WalletEvents, quotes []QuoteProvider, images ImageSource, prices PriceSocket, metricsHandler http.HandlerFunc) *Server {
	s := &Server{
		store:     store,
		cacher:    cacher,
		auth:      NewAuthenticator(store),
		events:    events,
		quotes:    quotes,
		images:    images,
		prices:    prices,
		metricsFn: metricsHandler,
	}

	router := httprouter.New()
	router.GET("/assets/search", s.handleAssetsSearch)
	router.GET("/assets/by_device_id/:device_id", s.authenticated(s.handleAssetsByDevice))
	router.GET("/fiat/quotes/:asset", s.handleFiatQuotes)
	router.POST("/fiat/webhooks/:provider", s.handleFiatWebhook)
	router.GET("/nft/assets/:id/image_preview", s.handleNftImagePreview)
	router.GET("/prices", s.handlePrices)
	router.POST("/metrics", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.metricsFn(w, r)
	})

	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler(router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Run() error {
	logger.Infow("api listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// authenticated wraps a handler with device signature verification. The
// verified device id replaces the route parameter of the same name.
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, httprouter.Params, string)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, walleterrors.BadRequest("unreadable body"))
			return
		}
		deviceId, err := s.auth.Verify(r, body)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, ps, deviceId)
	}
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var walletIds []int64
	if deviceId := r.Header.Get(headerDeviceId); deviceId != "" {
		ids, err := s.store.WalletIdsByDeviceId(deviceId)
		if err != nil {
			logger.Warnw("wallet lookup failed, prices only", "device", deviceId, "err", err)
		} else {
			walletIds = ids
		}
	}
	s.prices.ServeWS(w, r, walletIds)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, walleterrors.HTTPStatus(err), map[string]string{"error": err.Error()})
}
