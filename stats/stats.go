// Copyright (c) 2024 The drv Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stats is the driver's metrics surface: a struct of proxy
// attach/detach/process counters and gauges, registered with the
// default prometheus registry.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds every collector the driver exposes. Construct once per
// process via NewStats and pass the pointer to the loop; the debug HTTP
// surface's /metrics endpoint serves the default registry they live in.
type Stats struct {
	ProxiesAttached *prometheus.CounterVec
	ProxiesDetached *prometheus.CounterVec
	ProxiesFailed   *prometheus.CounterVec
	ProxiesLive     prometheus.Gauge

	ProcessLatency *prometheus.HistogramVec
	ProcessErrors  *prometheus.CounterVec

	LiveIDs prometheus.Gauge
}

// NewStats builds and registers every collector under namespace in one
// shot; construct it once per process.
func NewStats(namespace string) *Stats {
	s := &Stats{
		ProxiesAttached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxies_attached_total",
			Help:      "total proxies successfully attached",
		}, nil),
		ProxiesDetached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxies_detached_total",
			Help:      "total proxies detached",
		}, nil),
		ProxiesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxies_attach_failed_total",
			Help:      "total proxies whose attach failed or self-closed during attach",
		}, nil),
		ProxiesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxies_live",
			Help:      "current number of attached proxies",
		}),
		ProcessLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_latency_seconds",
			Help:      "Proxy.Process dispatch latency",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, nil),
		ProcessErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_errors_total",
			Help:      "total errors returned from Proxy.Process",
		}, nil),
		LiveIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_ids",
			Help:      "size of the loop's live-id bookkeeping tree",
		}),
	}
	prometheus.MustRegister(
		s.ProxiesAttached, s.ProxiesDetached, s.ProxiesFailed, s.ProxiesLive,
		s.ProcessLatency, s.ProcessErrors, s.LiveIDs,
	)
	return s
}

// ObserveProcess records one Proxy.Process dispatch's latency and,
// if err is non-nil, increments ProcessErrors.
func (s *Stats) ObserveProcess(start time.Time, err error) {
	s.ProcessLatency.WithLabelValues().Observe(time.Since(start).Seconds())
	if err != nil {
		s.ProcessErrors.WithLabelValues().Inc()
	}
}

// Attached records a successful attach and bumps the live gauge.
func (s *Stats) Attached() {
	s.ProxiesAttached.WithLabelValues().Inc()
	s.ProxiesLive.Inc()
}

// AttachFailed records an attach that failed or self-closed.
func (s *Stats) AttachFailed() {
	s.ProxiesFailed.WithLabelValues().Inc()
}

// Detached records a detach and drops the live gauge.
func (s *Stats) Detached() {
	s.ProxiesDetached.WithLabelValues().Inc()
	s.ProxiesLive.Dec()
}

// SetLiveIDs reports the loop's current live-id tree size.
func (s *Stats) SetLiveIDs(n int) {
	s.LiveIDs.Set(float64(n))
}
