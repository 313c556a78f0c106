// Package metrics exposes prometheus collectors for engine, recorder, and
// store activity. The daemon serves them on the web API's /metrics route.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "turnstile"

// Set holds every collector the daemon registers. Collectors live on a
// private registry so tests stay independent of the global default.
type Set struct {
	registry *prometheus.Registry

	FramesProcessed prometheus.Counter
	FramesSkipped   prometheus.Counter
	FrameErrors     prometheus.Counter
	DetectionErrors prometheus.Counter
	FacesDetected   prometheus.Counter
	ProcessSeconds  prometheus.Histogram

	AttendanceRecorded  *prometheus.CounterVec
	AttendanceDebounced prometheus.Counter
	UnknownRecorded     *prometheus.CounterVec
	CapturesSuppressed  *prometheus.CounterVec
	StoreErrors         prometheus.Counter

	MotionFramesDropped prometheus.Counter
	EventsDropped       prometheus.Counter
	NotifyFailures      prometheus.Counter

	ActiveTracks prometheus.Gauge
	LockedStaff  prometheus.Gauge
}

// NewSet builds the collector set on a fresh registry, including the
// standard Go runtime and process collectors.
func NewSet() *Set {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Set{
		registry: registry,
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames run through the primary detection path.",
		}),
		FramesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames skipped by the frame-skip and minimum-gap throttles.",
		}),
		FrameErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Frame source failures.",
		}),
		DetectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_errors_total",
			Help:      "Face engine failures on the primary path.",
		}),
		FacesDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_detected_total",
			Help:      "Faces reported by the detector across all frames.",
		}),
		ProcessSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_process_seconds",
			Help:      "Wall-clock time spent on one primary detection cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		AttendanceRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_recorded_total",
			Help:      "Attendance rows written, by capture type.",
		}, []string{"type"}),
		AttendanceDebounced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_debounced_total",
			Help:      "Staff captures dropped by the per-staff debounce window.",
		}),
		UnknownRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_recorded_total",
			Help:      "Unknown entries written, by entry type.",
		}, []string{"entry_type"}),
		CapturesSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_suppressed_total",
			Help:      "Unknown captures suppressed before writing, by gate.",
		}, []string{"gate"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Capture writes that failed at the store.",
		}),
		MotionFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_frames_dropped_total",
			Help:      "Frames the motion worker was too busy to accept.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Engine events dropped because the subscriber buffer was full.",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Webhook notifications that failed after retries.",
		}),
		ActiveTracks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tracks",
			Help:      "Person tracks currently held by the registry.",
		}),
		LockedStaff: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locked_staff",
			Help:      "Tracker ids currently locked to a staff identity.",
		}),
	}
}

// Handler serves the set's registry in the prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
