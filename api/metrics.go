package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/walletbase/walletd/metrics"
	"github.com/walletbase/walletd/store"
)

// ParserStateSource reads the enabled parser states so their block
// gauges can be refreshed at scrape time.
type ParserStateSource interface {
	EnabledParserStates() ([]store.ParserState, error)
}

// NewMetricsHandler serves the process registry in the Prometheus text
// format, refreshing the parser gauges from the database first. Consumer
// and job gauges are maintained at report time.
func NewMetricsHandler(states ParserStateSource) http.HandlerFunc {
	inner := promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request) {
		if states != nil {
			refreshParserGauges(states)
		}
		inner.ServeHTTP(w, r)
	}
}

func refreshParserGauges(states ParserStateSource) {
	parserStates, err := states.EnabledParserStates()
	if err != nil {
		logger.Warnw("parser state refresh failed", "err", err)
		return
	}
	for _, state := range parserStates {
		metrics.ParserCurrentBlock.WithLabelValues(state.Chain.String()).Set(float64(state.CurrentBlock))
		metrics.ParserLatestBlock.WithLabelValues(state.Chain.String()).Set(float64(state.LatestBlock))
	}
}
