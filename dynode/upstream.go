package dynode

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// RequestUrl is one resolved upstream target: the bare endpoint plus the
// headers derived from the node's static config and its URL params.
type RequestUrl struct {
	URL          string
	Path         string
	Headers      map[string]string
	ParamHeaders map[string]string
}

// ParseUpstream splits a configured node URL into an endpoint and
// param-derived headers: query params of the configured URL are sent as
// headers, not forwarded in the URL.
func ParseUpstream(rawURL, path string) (RequestUrl, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return RequestUrl{}, errors.Wrapf(err, "parse upstream %q", rawURL)
	}
	params := map[string]string{}
	for key, values := range u.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	u.RawQuery = ""
	return RequestUrl{
		URL:          strings.TrimRight(u.String(), "/"),
		Path:         path,
		ParamHeaders: params,
	}, nil
}

func (t RequestUrl) fullURL() string {
	if t.Path == "" || t.Path == "/" {
		return t.URL
	}
	return t.URL + t.Path
}

func (t RequestUrl) applyHeaders(dst *fasthttp.Request) {
	for key, value := range t.Headers {
		dst.Header.Set(key, value)
	}
	for key, value := range t.ParamHeaders {
		dst.Header.Set(key, value)
	}
}

// BuildJsonRpc composes the upstream request for a JSON-RPC call: POST,
// JSON content type, node headers layered on top.
func BuildJsonRpc(dst *fasthttp.Request, target RequestUrl, body []byte) {
	dst.SetRequestURI(target.fullURL())
	dst.Header.SetMethod(fasthttp.MethodPost)
	dst.Header.SetContentType("application/json")
	dst.SetBody(body)
	target.applyHeaders(dst)
}

// BuildForwarded composes a pass-through request: the original headers
// filtered to the allow-list, then the node headers.
func BuildForwarded(dst *fasthttp.Request, target RequestUrl, req Request, allowList []string, headerValue func(name string) string) {
	dst.SetRequestURI(target.fullURL())
	dst.Header.SetMethod(req.Method)
	if len(req.Body) > 0 {
		dst.SetBody(req.Body)
	}
	for _, name := range allowList {
		if value := headerValue(name); value != "" {
			dst.Header.Set(name, value)
		}
	}
	target.applyHeaders(dst)
}

// Upstream dispatches built requests. No retries: the caller's client is
// expected to retry, and 5xx responses are surfaced verbatim.
type Upstream struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func NewUpstream(timeout time.Duration) *Upstream {
	return &Upstream{
		client: &fasthttp.Client{
			MaxConnsPerHost:     512,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

func (u *Upstream) Do(req *fasthttp.Request, resp *fasthttp.Response) error {
	return u.client.DoTimeout(req, resp, u.timeout)
}
