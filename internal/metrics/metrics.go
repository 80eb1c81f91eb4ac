// Package metrics holds the Prometheus collectors for the HTTP surface, the embedding
// provider, the chat relay and the ranked-similarity queries.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fuego"

var registerOnce sync.Once

// Register adds every collector to the default registry. Call it from main;
// repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingCacheLookups,
			RelayStreamsTotal,
			RelayEventsTotal,
			RelayDroppedLinesTotal,
			MatchQueriesTotal,
			MatchQueryDuration,
		)
	})
}
