// Package pusher consumes notification jobs and delivers localized push
// notifications through the external push gateway.
package pusher

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

var logger = log.NewModuleLogger("pusher")

// GatewayRequest is the push gateway wire contract.
type GatewayRequest struct {
	Tokens   []string          `json:"tokens"`
	Platform string            `json:"platform"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Topic    string            `json:"topic,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type GatewayResponse struct {
	Counts int      `json:"counts"`
	Logs   []string `json:"logs"`
}

// Gateway posts notification batches to the push service.
type Gateway interface {
	Send(ctx context.Context, req GatewayRequest) (GatewayResponse, error)
}

type httpGateway struct {
	url    string
	client *http.Client
}

func NewGateway(url string) Gateway {
	return &httpGateway{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (g *httpGateway) Send(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return GatewayResponse{}, errors.Wrap(err, "marshal push request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return GatewayResponse{}, errors.Wrap(err, "build push request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return GatewayResponse{}, walleterrors.E(walleterrors.KindTransient, err)
	}
	defer resp.Body.Close()
	if walleterrors.RetryableStatus(resp.StatusCode) {
		return GatewayResponse{}, walleterrors.E(walleterrors.KindTransient, errors.Errorf("push gateway status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return GatewayResponse{}, walleterrors.E(walleterrors.KindUpstream, errors.Errorf("push gateway status %d", resp.StatusCode))
	}
	var out GatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GatewayResponse{}, errors.Wrap(err, "decode push response")
	}
	return out, nil
}

// DeviceStore is the persistence surface the pusher needs: asset lookups
// for symbols, and the unregistered-token flip.
type DeviceStore interface {
	GetAsset(id types.AssetId) (types.Asset, error)
	DisablePush(deviceId int64) error
}

// Pusher is the consumer handler for notifications_transactions and
// notifications_rewards.
type Pusher struct {
	name     string
	gateway  Gateway
	db       DeviceStore
	iosTopic string
}

func New(name string, gateway Gateway, db DeviceStore, iosTopic string) *Pusher {
	return &Pusher{name: name, gateway: gateway, db: db, iosTopic: iosTopic}
}

func (p *Pusher) Name() string { return p.name }

// ShouldProcess skips devices that cannot receive pushes, acking without
// work.
func (p *Pusher) ShouldProcess(payload json.RawMessage) bool {
	var job types.NotificationPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return false
	}
	return job.Recipient.Device.IsPushable()
}

func (p *Pusher) Process(ctx context.Context, payload json.RawMessage) (int, error) {
	var job types.NotificationPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return 0, walleterrors.Invariant("malformed notification payload: %v", err)
	}
	device := job.Recipient.Device
	tx := job.Transaction

	symbol := string(tx.AssetId.Chain)
	decimals := int32(0)
	if asset, err := p.db.GetAsset(tx.AssetId); err == nil {
		symbol = asset.Symbol
		decimals = asset.Decimals
	}
	notification := BuildNotification(tx, job.Recipient.Subscription, device.Locale, symbol, FormatAmount(tx.Value, decimals))

	req := GatewayRequest{
		Tokens:   []string{device.Token},
		Platform: string(device.Platform),
		Title:    notification.Title,
		Message:  notification.Message,
		Data: map[string]string{
			"type":           "transaction",
			"transaction_id": tx.Id.String(),
			"wallet_index":   big.NewInt(int64(job.Recipient.Subscription.WalletIndex)).String(),
		},
	}
	if device.Platform == types.PlatformIOS {
		req.Topic = p.iosTopic
	}

	resp, err := p.gateway.Send(ctx, req)
	if err != nil {
		return 0, err
	}
	if hasUnregisteredToken(resp.Logs) {
		// Best-effort flip; the device re-registers with a fresh token.
		if err := p.db.DisablePush(device.Id); err != nil {
			logger.Warnw("disable push failed", "device", device.DeviceId, "err", err)
		}
		return 0, nil
	}
	return 1, nil
}

func hasUnregisteredToken(logs []string) bool {
	for _, entry := range logs {
		lower := strings.ToLower(entry)
		if strings.Contains(lower, "unregistered") || strings.Contains(lower, "not registered") {
			return true
		}
	}
	return false
}

// FormatAmount renders an integer value at the given decimals, trimming
// trailing zeros.
func FormatAmount(value string, decimals int32) string {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || decimals == 0 {
		return value
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, scale, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := strings.TrimRight(
		strings.Repeat("0", int(decimals)-len(frac.String()))+frac.String(), "0")
	return whole.String() + "." + fracStr
}
