package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/walletbase/walletd/walleterrors"
)

const (
	headerDeviceId  = "x-device-id"
	headerSignature = "x-device-signature"
	headerTimestamp = "x-device-timestamp"
	headerBodyHash  = "x-device-body-hash"

	signatureVersion = "v1"
	signatureWindow  = 5 * time.Minute
)

// KeySource resolves a device's registered ed25519 public key, hex
// encoded.
type KeySource interface {
	GetDevicePublicKey(deviceId string) (string, error)
}

// Authenticator verifies device request signatures. The signed string is
// "v1.<ts>.<method>.<path>.<bodyhash>" with ts in milliseconds within
// ±5 minutes of server time. All comparisons are constant-time.
type Authenticator struct {
	keys KeySource
	now  func() time.Time
}

func NewAuthenticator(keys KeySource) *Authenticator {
	return &Authenticator{keys: keys, now: time.Now}
}

// Verify checks the three signature headers against the request. It
// returns the authenticated device id.
func (a *Authenticator) Verify(r *http.Request, body []byte) (string, error) {
	deviceId := r.Header.Get(headerDeviceId)
	signature := r.Header.Get(headerSignature)
	timestamp := r.Header.Get(headerTimestamp)
	bodyHash := r.Header.Get(headerBodyHash)
	if deviceId == "" || signature == "" || timestamp == "" || bodyHash == "" {
		return "", walleterrors.Unauthorized("missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", walleterrors.Unauthorized("malformed timestamp")
	}
	drift := a.now().Sub(time.Unix(0, ts*int64(time.Millisecond)))
	if drift > signatureWindow || drift < -signatureWindow {
		return "", walleterrors.Unauthorized("timestamp outside window")
	}

	sum := sha256.Sum256(body)
	expectedHash := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expectedHash), []byte(bodyHash)) != 1 {
		return "", walleterrors.Unauthorized("body hash mismatch")
	}

	keyHex, err := a.keys.GetDevicePublicKey(deviceId)
	if err != nil {
		return "", walleterrors.Unauthorized("unknown device")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return "", walleterrors.Unauthorized("bad device key")
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", walleterrors.Unauthorized("malformed signature")
	}

	signed := fmt.Sprintf("%s.%s.%s.%s.%s", signatureVersion, timestamp, r.Method, r.URL.Path, bodyHash)
	if !ed25519.Verify(ed25519.PublicKey(key), []byte(signed), sig) {
		return "", walleterrors.Unauthorized("signature mismatch")
	}
	return deviceId, nil
}
