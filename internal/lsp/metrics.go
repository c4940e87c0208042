package lsp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "javalsp_lsp_requests_total",
			Help: "LSP requests issued to the language server, by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "javalsp_lsp_request_duration_seconds",
			Help:    "Latency of LSP requests to the language server.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"method"},
	)

	spawnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "javalsp_process_spawns_total",
			Help: "Language server process launches, by outcome.",
		},
		[]string{"outcome"},
	)
)

const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomeDead    = "dead"
)
