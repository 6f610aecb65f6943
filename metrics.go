/*
   Copyright Mycophonic.

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

package straw

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "straw"

// Directions used as the "direction" label.
const (
	directionEncode = "encode"
	directionDecode = "decode"
)

// Metrics holds the codec's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	frames    *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	subframes *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_total",
			Help:      "Frames encoded or decoded.",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_total",
			Help:      "Bytes consumed and produced, by direction and representation.",
		}, []string{"direction", "representation"}),
		subframes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "subframes_total",
			Help:      "Subframes written or read, by type.",
		}, []string{"direction", "type"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fallbacks_total",
			Help:      "Subframes stored raw instead of predicted, by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "duration_seconds",
			Help:      "Wall time of whole encode and decode calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"direction"}),
	}

	for _, collector := range []prometheus.Collector{
		metrics.frames, metrics.bytes, metrics.subframes, metrics.fallbacks, metrics.duration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("registering straw metrics: %w", err)
		}
	}

	return metrics, nil
}

func (m *Metrics) observeStats(direction string, stats Stats, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.frames.WithLabelValues(direction).Add(float64(stats.Frames))
	m.bytes.WithLabelValues(direction, "pcm").Add(float64(stats.PCMBytes))
	m.bytes.WithLabelValues(direction, "stream").Add(float64(stats.StreamBytes))

	for kind, count := range stats.Subframes {
		m.subframes.WithLabelValues(direction, kind).Add(float64(count))
	}

	for reason, count := range stats.Fallbacks {
		m.fallbacks.WithLabelValues(reason).Add(float64(count))
	}

	m.duration.WithLabelValues(direction).Observe(elapsed.Seconds())
}
