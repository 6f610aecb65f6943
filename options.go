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
	"io"
	"runtime"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/mycophonic/saprobe-straw"

// Option configures the collaborators of an Encoder or Decoder.
type Option func(*options)

type options struct {
	logger  logrus.FieldLogger
	metrics *Metrics
	tracer  trace.Tracer
	workers int
}

func newOptions(opts []Option) options {
	silent := logrus.New()
	silent.SetOutput(io.Discard)

	out := options{
		logger:  silent,
		tracer:  noop.NewTracerProvider().Tracer(tracerName),
		workers: runtime.GOMAXPROCS(0),
	}

	for _, opt := range opts {
		opt(&out)
	}

	return out
}

// WithLogger routes diagnostics to logger. The default discards them.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records counters and durations into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithTracerProvider creates spans from provider. The default is a no-op.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) {
		if provider != nil {
			o.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithWorkers bounds the number of frames processed concurrently.
// Values below 1 select GOMAXPROCS.
func WithWorkers(workers int) Option {
	return func(o *options) {
		if workers > 0 {
			o.workers = workers
		}
	}
}
