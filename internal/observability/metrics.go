package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfsensor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfsensor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfsensor",
			Subsystem: "radio",
			Name:      "packets_sent_total",
			Help:      "Packets handed to the transport.",
		},
		[]string{"node", "specification"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfsensor",
			Subsystem: "radio",
			Name:      "packets_received_total",
			Help:      "Packets decoded from the transport.",
		},
		[]string{"node", "specification"},
	)
	packetsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfsensor",
			Subsystem: "radio",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped before send or dispatch.",
		},
		[]string{"node", "reason"},
	)
	slotsUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfsensor",
			Subsystem: "tdma",
			Name:      "slots_used_total",
			Help:      "Own TDMA windows used for telemetry.",
		},
		[]string{"node"},
	)
	syncCorrections = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfsensor",
			Subsystem: "tdma",
			Name:      "sync_wait_seconds",
			Help:      "Time until the next own window after a peer resync.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"node"},
	)
	missionNextIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rfsensor",
			Subsystem: "mission",
			Name:      "next_index",
			Help:      "Next waypoint index a vehicle accepts.",
		},
		[]string{"node"},
	)
	missionAcks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfsensor",
			Subsystem: "mission",
			Name:      "acks_total",
			Help:      "Waypoint acknowledgements sent by vehicles.",
		},
		[]string{"node", "accepted"},
	)
	uploadRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfsensor",
			Subsystem: "upload",
			Name:      "retries_total",
			Help:      "Ground station mission upload retransmissions.",
		},
		[]string{"vehicle", "step"},
	)
	uploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfsensor",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Mission upload duration per vehicle.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"vehicle", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			packetsSent, packetsReceived, packetsDropped,
			slotsUsed, syncCorrections,
			missionNextIndex, missionAcks,
			uploadRetries, uploadDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacketSent(node, specification string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(node, specification).Inc()
}

func RecordPacketReceived(node, specification string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(node, specification).Inc()
}

func RecordPacketDropped(node, reason string) {
	RegisterMetrics()
	packetsDropped.WithLabelValues(node, reason).Inc()
}

func RecordSlot(node string) {
	RegisterMetrics()
	slotsUsed.WithLabelValues(node).Inc()
}

func RecordSync(node string, wait time.Duration) {
	RegisterMetrics()
	syncCorrections.WithLabelValues(node).Observe(wait.Seconds())
}

func RecordMissionAck(node string, nextIndex int, accepted bool) {
	RegisterMetrics()
	missionNextIndex.WithLabelValues(node).Set(float64(nextIndex))
	missionAcks.WithLabelValues(node, strconv.FormatBool(accepted)).Inc()
}

func RecordUploadRetry(vehicle int, step string) {
	RegisterMetrics()
	uploadRetries.WithLabelValues(strconv.Itoa(vehicle), step).Inc()
}

func RecordUpload(vehicle int, duration time.Duration, success bool) {
	RegisterMetrics()
	uploadDuration.WithLabelValues(strconv.Itoa(vehicle), strconv.FormatBool(success)).
		Observe(duration.Seconds())
}
