package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	DeviceRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_registrations_total",
			Help: "Device registrations by outcome.",
		},
		[]string{"outcome"},
	)

	PreKeyBundlesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prekey_bundles_fetched_total",
			Help: "Pre-key bundle fetches by outcome.",
		},
		[]string{"outcome"},
	)

	OneTimePreKeysConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "one_time_prekeys_consumed_total",
			Help: "One-time prekeys issued (and therefore deleted).",
		},
	)

	SignedPreKeysRotatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signed_prekeys_rotated_total",
			Help: "Signed prekey rotations by outcome.",
		},
		[]string{"outcome"},
	)

	CiphertextsStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ciphertexts_stored_total",
			Help: "Ciphertext envelopes stored via fan-out.",
		},
	)

	CiphertextFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ciphertext_fetches_total",
			Help: "Ciphertext fetches by outcome.",
		},
		[]string{"outcome"},
	)

	DevicesPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devices_pruned_total",
			Help: "Devices removed by lifecycle pruning.",
		},
	)
)

// MustRegister registers every collector under a constant service label.
func MustRegister(serviceName string) {
	prometheus.WrapRegistererWith(
		prometheus.Labels{"service": serviceName},
		prometheus.DefaultRegisterer,
	).MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		DeviceRegistrationsTotal,
		PreKeyBundlesFetchedTotal,
		OneTimePreKeysConsumedTotal,
		SignedPreKeysRotatedTotal,
		CiphertextsStoredTotal,
		CiphertextFetchesTotal,
		DevicesPrunedTotal,
	)
}
