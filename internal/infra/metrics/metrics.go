package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sepa_batches_created_total",
		Help: "Direct debit batches created.",
	})

	BatchValidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sepa_batch_validation_failures_total",
		Help: "Batches that failed validation with critical errors.",
	})

	CollectionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sepa_collections_processed_total",
		Help: "Invoice collections marked as paid.",
	})

	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sepa_retry_attempts_total",
		Help: "Attempts made by the retry manager.",
	})

	OpenCircuitBreakers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sepa_open_circuit_breakers",
		Help: "Circuit breakers currently open.",
	})
)
