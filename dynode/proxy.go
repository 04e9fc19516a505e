package dynode

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/walletbase/walletd/metrics"
	"github.com/walletbase/walletd/store"
	"github.com/walletbase/walletd/types"
)

// NodeSource resolves the upstream node list for a chain.
type NodeSource interface {
	GetNodes(chain types.Chain) ([]store.Node, error)
}

// Dispatcher executes one built upstream request.
type Dispatcher interface {
	Do(req *fasthttp.Request, resp *fasthttp.Response) error
}

type Proxy struct {
	nodes    NodeSource
	cache    *ResponseCache
	rules    map[types.Chain]RuleSet
	allow    []string
	upstream Dispatcher
}

func NewProxy(nodes NodeSource, responseCache *ResponseCache, rules map[types.Chain]RuleSet, allowList []string, upstream Dispatcher) *Proxy {
	return &Proxy{
		nodes:    nodes,
		cache:    responseCache,
		rules:    rules,
		allow:    allowList,
		upstream: upstream,
	}
}

// Handle is the fasthttp request handler. The chain is the first host
// label, e.g. ethereum.dynode.example.com.
func (p *Proxy) Handle(ctx *fasthttp.RequestCtx) {
	host := stripPort(string(ctx.Host()))
	chain, err := chainFromHost(host)
	if err != nil {
		writeError(ctx, fasthttp.StatusNotFound, "unknown chain")
		return
	}

	req := Classify(string(ctx.Method()), string(ctx.Path()), ctx.PostBody())
	rule, cacheable := p.rules[chain].Match(req)
	key := CacheKey(host, req)

	if cacheable {
		if cached, ok := p.cache.Get(key); ok {
			metrics.ProxyCacheHits.WithLabelValues(host, req.MethodOrPath()).Inc()
			respond(ctx, cached.Status, cached.ContentType, cached.Body)
			return
		}
		metrics.ProxyCacheMisses.WithLabelValues(host, req.MethodOrPath()).Inc()
	}

	nodes, err := p.nodes.GetNodes(chain)
	if err != nil || len(nodes) == 0 {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "no upstream available")
		return
	}
	target, err := ParseUpstream(nodes[0].URL, req.Path)
	if err != nil {
		logger.Errorw("bad upstream url", "chain", chain, "err", err)
		writeError(ctx, fasthttp.StatusBadGateway, "bad upstream")
		return
	}

	upReq := fasthttp.AcquireRequest()
	upResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(upReq)
	defer fasthttp.ReleaseResponse(upResp)

	if req.Kind == KindJsonRpc {
		BuildJsonRpc(upReq, target, req.Body)
	} else {
		BuildForwarded(upReq, target, req, p.allow, func(name string) string {
			return string(ctx.Request.Header.Peek(name))
		})
	}

	start := time.Now()
	err = p.upstream.Do(upReq, upResp)
	metrics.ProxyRequestDuration.WithLabelValues(host, req.MethodOrPath(), target.URL).
		Observe(time.Since(start).Seconds())
	if err != nil {
		if isRefused(err) {
			writeError(ctx, fasthttp.StatusServiceUnavailable, "upstream refused")
			return
		}
		writeError(ctx, fasthttp.StatusBadGateway, err.Error())
		return
	}

	status := upResp.StatusCode()
	contentType := string(upResp.Header.ContentType())
	body := append([]byte(nil), upResp.Body()...)

	if cacheable && status >= 200 && status < 300 {
		p.cache.Put(key, CachedResponse{Status: status, ContentType: contentType, Body: body}, rule.TTL)
	}
	respond(ctx, status, contentType, body)
}

func chainFromHost(host string) (types.Chain, error) {
	label := host
	if i := strings.IndexByte(host, '.'); i > 0 {
		label = host[:i]
	}
	return types.ParseChain(label)
}

func stripPort(host string) string {
	if i := strings.IndexByte(host, ':'); i > 0 {
		return host[:i]
	}
	return host
}

func isRefused(err error) bool {
	if err == fasthttp.ErrNoFreeConns {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

func respond(ctx *fasthttp.RequestCtx, status int, contentType string, body []byte) {
	ctx.SetStatusCode(status)
	if contentType != "" {
		ctx.SetContentType(contentType)
	}
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	respond(ctx, status, "application/json", body)
}
