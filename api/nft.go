package api

import (
	"context"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/walleterrors"
)

// defaultImageCacheControl applies when the upstream sends none.
const defaultImageCacheControl = "public, max-age=604800, immutable"

// NftImage is an upstream preview with the caching headers worth
// preserving.
type NftImage struct {
	Body         []byte `json:"body"`
	ContentType  string `json:"content_type"`
	CacheControl string `json:"cache_control"`
	LastModified string `json:"last_modified"`
}

// ImageSource fetches NFT preview images from the upstream service.
type ImageSource interface {
	FetchPreview(ctx context.Context, id string) (NftImage, error)
}

type httpImageSource struct {
	baseURL string
	client  *http.Client
}

func NewImageSource(baseURL string) ImageSource {
	return &httpImageSource{baseURL: baseURL, client: &http.Client{Timeout: 20 * time.Second}}
}

func (s *httpImageSource) FetchPreview(ctx context.Context, id string) (NftImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+id+"/image_preview", nil)
	if err != nil {
		return NftImage{}, errors.Wrap(err, "build image request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return NftImage{}, walleterrors.E(walleterrors.KindTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return NftImage{}, walleterrors.NotFound("image")
	}
	if resp.StatusCode >= 400 {
		return NftImage{}, walleterrors.E(walleterrors.KindUpstream, errors.Errorf("image upstream status %d", resp.StatusCode))
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return NftImage{}, walleterrors.E(walleterrors.KindTransient, err)
	}
	return NftImage{
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		CacheControl: resp.Header.Get("Cache-Control"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func (s *Server) handleNftImagePreview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	key := cache.NftImagePreview(id)

	var image NftImage
	hit := false
	if s.cacher != nil {
		hit = s.cacher.Get(key, &image) == nil
	}
	if !hit {
		if s.images == nil {
			writeError(w, walleterrors.E(walleterrors.KindNotFound, errors.New("image previews not configured")))
			return
		}
		fetched, err := s.images.FetchPreview(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		image = fetched
		if s.cacher != nil {
			if err := s.cacher.Set(key, image); err != nil {
				logger.Debugw("image cache write failed", "id", id, "err", err)
			}
		}
	}

	cacheControl := image.CacheControl
	if cacheControl == "" {
		cacheControl = defaultImageCacheControl
	}
	w.Header().Set("Cache-Control", cacheControl)
	if image.LastModified != "" {
		w.Header().Set("Last-Modified", image.LastModified)
	}
	if image.ContentType != "" {
		w.Header().Set("Content-Type", image.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(image.Body); err != nil {
		logger.Debugw("image write failed", "id", id, "err", err)
	}
}
