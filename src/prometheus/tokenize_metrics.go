/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package prometheus

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var TOKENIZE_PROMETHEUS_METRICS_PORT = "9111"

// sessionID labels every metric of this process run.
var sessionID string

func init() {
	sessionID = time.Now().Format("20060102-150405")
	if port, ok := os.LookupEnv("VAULTSWAP_PROMETHEUS_METRICS_PORT"); ok {
		TOKENIZE_PROMETHEUS_METRICS_PORT = port
	}
}

func GetSessionID() string {
	return sessionID
}

// ================================= Metrics  ================================= //

var (
	vaultRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultswap_vault_requests_total",
			Help: "Tokenization requests sent to the vault, by outcome",
		},
		[]string{"table_name", "column_name", "outcome"},
	)

	vaultRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultswap_vault_request_duration_seconds",
			Help:    "Duration of one vault tokenization request including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"table_name", "column_name"},
	)

	tokensWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultswap_tokens_written_total",
			Help: "Tokens merged into the staging table",
		},
		[]string{"table_name", "column_name"},
	)

	pipelineStage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaultswap_pipeline_stage",
			Help: "1 for the stage the run is currently in, 0 otherwise",
		},
		[]string{"table_name", "session_id", "stage"},
	)
)

// RecordVaultRequest records one vault batch call. outcome is "ok" or the
// error kind of the failure.
func RecordVaultRequest(table, column, outcome string, d time.Duration) {
	vaultRequestsTotal.WithLabelValues(table, column, outcome).Inc()
	vaultRequestDuration.WithLabelValues(table, column).Observe(d.Seconds())
}

func RecordTokensWritten(table, column string, n int64) {
	tokensWrittenTotal.WithLabelValues(table, column).Add(float64(n))
}

// SetStage marks stage as current for table and clears the previous one.
func SetStage(table, previous, stage string) {
	if previous != "" {
		pipelineStage.WithLabelValues(table, sessionID, previous).Set(0)
	}
	pipelineStage.WithLabelValues(table, sessionID, stage).Set(1)
}
