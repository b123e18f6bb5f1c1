// Package metrics holds the prometheus collectors shared by the publisher,
// receiver and broker. Collectors are registered with the default registry
// and served by ptstreamd on its metrics address.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ptstream"

var (
	PublisherFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "frames_total",
		Help:      "Tokens encoded into outgoing batches.",
	}, []string{"topic"})

	PublisherFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "flushes_total",
		Help:      "Batches handed to the transport.",
	}, []string{"topic"})

	PublisherDroppedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "dropped_batches_total",
		Help:      "Batches discarded because the transport rejected them.",
	}, []string{"topic"})

	PublisherDroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "dropped_frames_total",
		Help:      "Tokens contained in dropped batches.",
	}, []string{"topic"})

	PublisherThrottleSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "throttle_seconds_total",
		Help:      "Time producers spent blocked after exceeding the rate budget.",
	}, []string{"topic"})

	PublisherBatchBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "batch_bytes",
		Help:      "Size of flushed batches.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"topic"})

	ReceiverBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "batches_total",
		Help:      "Batches received from the transport.",
	}, []string{"topic"})

	ReceiverTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "tokens_total",
		Help:      "Tokens decoded and delivered.",
	}, []string{"topic"})

	ReceiverDecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "decode_errors_total",
		Help:      "Batches abandoned because a frame could not be decoded.",
	}, []string{"topic"})

	BrokerClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "clients",
		Help:      "Connected broker clients.",
	})

	BrokerMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "messages_total",
		Help:      "Messages fanned out to subscribers.",
	})

	BrokerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "bytes_total",
		Help:      "Bytes moved over broker connections.",
	}, []string{"direction"})

	BrokerDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "dropped_messages_total",
		Help:      "Messages not delivered because a subscriber was backed up.",
	})
)

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
