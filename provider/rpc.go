// Package provider holds the chain node adapters registered with the
// parser. The EVM adapter covers every account-model chain reachable
// over standard JSON-RPC; other chain families plug in behind the same
// capability interfaces.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/walleterrors"
)

var logger = log.NewModuleLogger("provider")

type rpcRequest struct {
	JsonRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Id      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcClient is a minimal JSON-RPC 2.0 client. One instance per node URL.
type rpcClient struct {
	url    string
	client *http.Client
}

func newRPCClient(url string, timeout time.Duration) *rpcClient {
	return &rpcClient{url: url, client: &http.Client{Timeout: timeout}}
}

func (c *rpcClient) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{JsonRpc: "2.0", Method: method, Params: params, Id: 1})
	if err != nil {
		return errors.Wrap(err, "marshal rpc request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return walleterrors.E(walleterrors.KindTransient, err)
	}
	defer resp.Body.Close()
	if walleterrors.RetryableStatus(resp.StatusCode) {
		return walleterrors.E(walleterrors.KindTransient, errors.Errorf("node status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return walleterrors.E(walleterrors.KindUpstream, errors.Errorf("node status %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return walleterrors.E(walleterrors.KindTransient, errors.Wrap(err, "decode rpc response"))
	}
	if rpcResp.Error != nil {
		return walleterrors.E(walleterrors.KindUpstream, rpcResp.Error)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return errors.Wrapf(err, "decode %s result", method)
	}
	return nil
}

func parseHexInt64(s string) (int64, error) {
	v, ok := parseHexBig(s)
	if !ok || !v.IsInt64() {
		return 0, errors.Errorf("bad hex quantity %q", s)
	}
	return v.Int64(), nil
}

func parseHexBig(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), true
	}
	return new(big.Int).SetString(s, 16)
}
