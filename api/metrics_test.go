package api

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletbase/walletd/store"
	"github.com/walletbase/walletd/types"
)

type fakeStates struct{ states []store.ParserState }

func (f *fakeStates) EnabledParserStates() ([]store.ParserState, error) { return f.states, nil }

func TestMetricsHandlerRefreshesParserGauges(t *testing.T) {
	handler := NewMetricsHandler(&fakeStates{states: []store.ParserState{
		{Chain: types.ChainBitcoin, CurrentBlock: 840000, LatestBlock: 840002},
	}})

	req := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := ioutil.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `parser_current_block{chain="bitcoin"} 840000`)
	assert.Contains(t, string(body), `parser_latest_block{chain="bitcoin"} 840002`)
}
