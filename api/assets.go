package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

func (s *Server) handleAssetsSearch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, walleterrors.BadRequest("missing query"))
		return
	}

	var chains []types.Chain
	if raw := r.URL.Query().Get("chains"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			chain, err := types.ParseChain(strings.TrimSpace(part))
			if err != nil {
				writeError(w, walleterrors.BadRequest("unknown chain %q", part))
				return
			}
			chains = append(chains, chain)
		}
	}

	limit := intQuery(r, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}
	offset := intQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	if deviceId := r.Header.Get(headerDeviceId); deviceId != "" && s.cacher != nil {
		if _, err := s.cacher.Increment(cache.AssetsSearchCounter(deviceId)); err != nil {
			logger.Debugw("search counter increment failed", "err", err)
		}
	}

	assets, err := s.store.SearchAssets(query, chains, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

func (s *Server) handleAssetsByDevice(w http.ResponseWriter, r *http.Request, ps httprouter.Params, deviceId string) {
	// The route parameter must match the authenticated device.
	if requested := ps.ByName("device_id"); requested != deviceId {
		writeError(w, walleterrors.Unauthorized("device mismatch"))
		return
	}
	ids, err := s.store.GetAssetIdsByDeviceId(deviceId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"asset_ids": ids})
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
