package dynode

import (
	"strings"
	"time"
)

// CacheRule decides whether a class of requests is cacheable and for how
// long. Empty matcher fields match everything.
type CacheRule struct {
	Path      string
	Method    string
	RpcMethod string
	TTL       time.Duration
}

func (r CacheRule) matches(req Request) bool {
	if r.Path != "" && r.Path != req.Path {
		return false
	}
	if r.Method != "" && !strings.EqualFold(r.Method, req.Method) {
		return false
	}
	if r.RpcMethod != "" {
		if req.Kind != KindJsonRpc || req.Call.Method != r.RpcMethod {
			return false
		}
	}
	return true
}

// RuleSet is an ordered rule list; the first match wins.
type RuleSet []CacheRule

// Match returns the first matching rule. No match means the request is
// not cached.
func (s RuleSet) Match(req Request) (CacheRule, bool) {
	for _, rule := range s {
		if rule.matches(req) {
			return rule, true
		}
	}
	return CacheRule{}, false
}
