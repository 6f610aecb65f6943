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

package straw_test

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mycophonic/saprobe-straw"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	metrics, err := straw.NewMetrics(reg)
	require.NoError(t, err)

	_, err = straw.NewMetrics(reg)
	require.Error(t, err, "collectors register once per registry")

	buf := tonal(20000, straw.Depth16, []int{0, 0}, []float64{1, 0.5}, []int32{0, 0})

	enc, err := straw.NewEncoder(straw.DefaultEncoderConfig(), straw.WithMetrics(metrics))
	require.NoError(t, err)

	var stream bytes.Buffer

	stats, err := enc.Encode(context.Background(), buf, &stream)
	require.NoError(t, err)

	_, _, err = straw.NewDecoder(straw.WithMetrics(metrics)).Decode(context.Background(), &stream)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	frames := map[string]float64{}
	names := map[string]bool{}

	for _, family := range families {
		names[family.GetName()] = true

		if family.GetName() != "straw_frames_total" {
			continue
		}

		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "direction" {
					frames[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}

	assert.True(t, names["straw_bytes_total"])
	assert.True(t, names["straw_subframes_total"])
	assert.True(t, names["straw_duration_seconds"])
	assert.InDelta(t, float64(stats.Frames), frames["encode"], 0)
	assert.InDelta(t, float64(stats.Frames), frames["decode"], 0)
}

func TestTracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	buf := tonal(10000, straw.Depth16, []int{0, 2}, []float64{1, 1}, []int32{5, 0})

	config := straw.DefaultEncoderConfig()
	config.Corrections = straw.CorrectAll

	enc, err := straw.NewEncoder(config, straw.WithTracerProvider(provider))
	require.NoError(t, err)

	var stream bytes.Buffer

	_, err = enc.Encode(context.Background(), buf, &stream)
	require.NoError(t, err)

	stream.Bytes()[len(stream.Bytes())-1] ^= 0xFF

	_, _, err = straw.NewDecoder(straw.WithTracerProvider(provider)).Decode(context.Background(), &stream)
	require.ErrorIs(t, err, straw.ErrDecode)

	ended := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		ended[span.Name()] = span
	}

	for _, name := range []string{
		"straw.encode", "straw.encode.corrections", "straw.encode.frames", "straw.decode", "straw.decode.frames",
	} {
		assert.Contains(t, ended, name)
	}

	assert.Equal(t, "Error", ended["straw.decode"].Status().Code.String())
}

func TestLogging(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	// White noise cannot be predicted, so every subframe falls back.
	buf := straw.NewBuffer(straw.PCMFormat{SampleRate: 8000, BitDepth: straw.Depth16, Channels: 1}, 4096)
	rng := rand.New(rand.NewPCG(11, 12))
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = rng.Int32N(1<<16) - 1<<15
	}

	enc, err := straw.NewEncoder(straw.DefaultEncoderConfig(), straw.WithLogger(logger))
	require.NoError(t, err)

	var stream bytes.Buffer

	stats, err := enc.Encode(context.Background(), buf, &stream)
	require.NoError(t, err)
	assert.Equal(t, stats.Frames, stats.Subframes["raw"])

	var fallbacks, summaries int

	for _, entry := range hook.AllEntries() {
		switch {
		case entry.Level == logrus.DebugLevel && entry.Message == "storing subframe verbatim":
			fallbacks++
		case entry.Level == logrus.InfoLevel && strings.HasPrefix(entry.Message, "straw encode"):
			summaries++
		}
	}

	assert.Equal(t, stats.Frames, fallbacks)
	assert.Equal(t, 1, summaries)

	var report bytes.Buffer
	require.NoError(t, stats.Print(&report))
	assert.Contains(t, report.String(), "subframes raw: ")
}
