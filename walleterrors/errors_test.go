package walleterrors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfWalksWrapChain(t *testing.T) {
	base := NotFound("asset")
	wrapped := errors.Wrap(base, "loading price")
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(E(KindTransient, errors.New("timeout"))))
	assert.True(t, Retryable(Transient("asset %s not fetched yet", "ethereum_0xabc")))
	assert.True(t, Retryable(errors.New("unclassified")))
	assert.False(t, Retryable(Invariant("terminal to pending")))
	assert.False(t, Retryable(BadRequest("bad limit")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("device")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(BadRequest("q too long")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthorized("expired")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(E(KindUpstream, errors.New("node 500"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 500} {
		assert.False(t, RetryableStatus(code), code)
	}
}

func TestENil(t *testing.T) {
	assert.NoError(t, E(KindFatal, nil))
}
