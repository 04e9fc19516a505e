// Package dynode is the reverse proxy in front of the per-chain RPC
// upstreams. Requests are classified, optionally served from a layered
// cache, and otherwise dispatched to the highest-priority enabled node.
package dynode

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/walletbase/walletd/log"
)

var logger = log.NewModuleLogger("dynode")

type RequestKind int

const (
	KindRegular RequestKind = iota
	KindJsonRpc
)

// JsonRpcCall is the decoded body of a JSON-RPC request.
type JsonRpcCall struct {
	JsonRpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Id      json.RawMessage `json:"id"`
}

// Request is an inbound request after classification. Call is set only
// for KindJsonRpc.
type Request struct {
	Kind   RequestKind
	Method string
	Path   string
	Body   []byte
	Call   *JsonRpcCall
}

// Classify decodes POST bodies as JSON-RPC; everything else passes
// through as a regular request.
func Classify(method, path string, body []byte) Request {
	req := Request{Kind: KindRegular, Method: method, Path: path, Body: body}
	if method != http.MethodPost || len(body) == 0 {
		return req
	}
	var call JsonRpcCall
	if err := json.Unmarshal(body, &call); err != nil {
		return req
	}
	if call.JsonRpc == "" || call.Method == "" {
		return req
	}
	req.Kind = KindJsonRpc
	req.Call = &call
	return req
}

// MethodOrPath is the method-like label used by cache rules and metrics:
// the RPC method for JSON-RPC calls, the URL path otherwise.
func (r Request) MethodOrPath() string {
	if r.Kind == KindJsonRpc {
		return r.Call.Method
	}
	return r.Path
}

// CacheKey builds the lookup key. Regular requests key on
// "<host>:<method>:<path>"; JSON-RPC on
// "<host>:POST:<path>:<rpc_method>[:<params_json>]". Params are omitted
// iff null or absent; an empty array is included, they are distinct
// requests upstream.
func CacheKey(host string, r Request) string {
	if r.Kind != KindJsonRpc {
		return host + ":" + r.Method + ":" + r.Path
	}
	key := host + ":POST:" + r.Path + ":" + r.Call.Method
	if params, ok := compactParams(r.Call.Params); ok {
		key += ":" + params
	}
	return key
}

func compactParams(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw), true
	}
	return buf.String(), true
}
