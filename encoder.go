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
	"context"
	"crypto/md5" //nolint:gosec // MD5 is the stream's content hash, not a security primitive.
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mycophonic/saprobe-straw/internal/blocking"
	"github.com/mycophonic/saprobe-straw/internal/correct"
	"github.com/mycophonic/saprobe-straw/internal/format"
	"github.com/mycophonic/saprobe-straw/internal/rice"
)

// Encoder compresses PCM buffers into straw streams. It is safe for
// concurrent use.
type Encoder struct {
	config EncoderConfig
	opts   options
}

// NewEncoder validates config and returns an encoder.
func NewEncoder(config EncoderConfig, opts ...Option) (*Encoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Encoder{config: config, opts: newOptions(opts)}, nil
}

// Config returns the encoder settings.
func (e *Encoder) Config() EncoderConfig {
	return e.config
}

// Encode writes buf as a complete stream to w.
func (e *Encoder) Encode(ctx context.Context, buf *Buffer, w io.Writer) (Stats, error) {
	start := time.Now()

	ctx, span := e.opts.tracer.Start(ctx, "straw.encode", trace.WithAttributes(
		attribute.Int("audio.channels", int(buf.Format.Channels)),
		attribute.Int("audio.bit_depth", int(buf.Format.BitDepth)),
		attribute.Int("audio.sample_rate", buf.Format.SampleRate),
		attribute.Int("audio.samples", buf.Samples()),
	))
	defer span.End()

	stats, err := e.encode(ctx, buf, w)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		e.opts.logger.WithError(err).Error("straw encode failed")

		return stats, err
	}

	span.SetAttributes(
		attribute.Int("straw.frames", stats.Frames),
		attribute.Int64("straw.stream_bytes", stats.StreamBytes),
	)

	e.opts.metrics.observeStats(directionEncode, stats, time.Since(start))

	e.opts.logger.WithFields(logrus.Fields{
		"frames":       stats.Frames,
		"pcm_bytes":    stats.PCMBytes,
		"stream_bytes": stats.StreamBytes,
		"ratio":        stats.Ratio(),
		"elapsed":      time.Since(start),
	}).Info("straw encode complete")

	return stats, nil
}

func (e *Encoder) encode(ctx context.Context, buf *Buffer, w io.Writer) (Stats, error) {
	stats := newStats()

	if err := buf.Validate(); err != nil {
		return stats, err
	}

	pcm := buf.PCM()
	stats.PCMBytes = int64(len(pcm))

	info := &format.StreamInfo{
		SampleRate:     buf.Format.SampleRate,
		Channels:       int(buf.Format.Channels),
		BitsPerSample:  int(buf.Format.BitDepth),
		TotalSamples:   int64(buf.Samples()),
		MD5:            md5.Sum(pcm), //nolint:gosec // Content hash.
		Responsiveness: e.config.Responsiveness,
	}

	channels := make([][]int32, len(buf.Channels))
	for idx, ch := range buf.Channels {
		channels[idx] = slices.Clone(ch)
	}

	channels, err := e.applyCorrections(ctx, channels, info)
	if err != nil {
		return stats, err
	}

	sizes, err := e.segment(channels)
	if err != nil {
		return stats, err
	}

	if len(sizes) > format.MaxFrames {
		return stats, fmt.Errorf("%w: %d frames exceed the stream limit", ErrConfig, len(sizes))
	}

	info.Frames = len(sizes)

	head, err := format.AppendStreamInfo(nil, info)
	if err != nil {
		return stats, fmt.Errorf("%w: stream header: %w", ErrEncode, err)
	}

	slots, frameStats, err := e.encodeFrames(ctx, channels, sizes, info.BitsPerSample)
	if err != nil {
		return stats, err
	}

	for _, fs := range frameStats {
		stats.merge(fs)
	}

	written, err := w.Write(head)
	stats.StreamBytes += int64(written)

	if err != nil {
		return stats, fmt.Errorf("writing stream header: %w", err)
	}

	for idx, slot := range slots {
		written, err := w.Write(slot)
		stats.StreamBytes += int64(written)

		if err != nil {
			return stats, fmt.Errorf("writing frame %d: %w", idx, err)
		}
	}

	return stats, nil
}

// applyCorrections runs shift, bias and gain in that order, recording their
// side data in info. It returns the (possibly shortened) channels.
func (e *Encoder) applyCorrections(ctx context.Context, channels [][]int32, info *format.StreamInfo) ([][]int32, error) {
	if e.config.Corrections == CorrectNone {
		return channels, nil
	}

	_, span := e.opts.tracer.Start(ctx, "straw.encode.corrections",
		trace.WithAttributes(attribute.String("straw.corrections", e.config.Corrections.String())))
	defer span.End()

	logger := e.opts.logger.WithField("stage", "corrections")

	if e.config.Corrections&CorrectShift != 0 {
		if params, ok := correct.Shift(channels, e.config.MaxLag, correct.DefaultAnalysis); ok {
			aligned, err := correct.ApplyShift(channels, params)
			if err != nil {
				return nil, fmt.Errorf("%w: shift: %w", ErrEncode, err)
			}

			channels = aligned
			info.Shift = &params

			logger.WithFields(logrus.Fields{
				"leading": params.Leading,
				"offsets": params.Offsets,
			}).Debug("channels shifted")
		}
	}

	if e.config.Corrections&CorrectBias != 0 {
		if bias, ok := correct.Bias(channels, info.BitsPerSample); ok {
			if err := correct.ApplyBias(channels, bias); err != nil {
				return nil, fmt.Errorf("%w: bias: %w", ErrEncode, err)
			}

			info.Bias = bias

			logger.WithField("bias", bias).Debug("bias removed")
		}
	}

	if e.config.Corrections&CorrectGain != 0 {
		if params, ok := correct.Gain(channels, info.BitsPerSample); ok {
			if err := correct.ApplyGain(channels, params); err != nil {
				return nil, fmt.Errorf("%w: gain: %w", ErrEncode, err)
			}

			info.Gain = &params

			logger.WithFields(logrus.Fields{
				"shift":   params.Shift,
				"factors": params.Factors,
			}).Debug("gain applied")
		}
	}

	return channels, nil
}

func (e *Encoder) segment(channels [][]int32) ([]int, error) {
	total := len(channels[0])

	if !e.config.DynamicBlocks {
		return blocking.Fixed(total, e.config.BlockSize), nil
	}

	sizes, err := blocking.ByEnergy(channels, e.config.Blocking)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return sizes, nil
}

// encodeFrames fills one slot per frame in parallel. Slots are indexed by
// sequence number so the caller can emit them in order.
func (e *Encoder) encodeFrames(
	ctx context.Context, channels [][]int32, sizes []int, bps int,
) ([][]byte, []Stats, error) {
	ctx, span := e.opts.tracer.Start(ctx, "straw.encode.frames",
		trace.WithAttributes(attribute.Int("straw.frames", len(sizes))))
	defer span.End()

	builder := &frameBuilder{
		cfg:    e.config,
		bps:    bps,
		coder:  rice.Coder{Responsiveness: e.config.Responsiveness},
		logger: e.opts.logger,
	}

	slots := make([][]byte, len(sizes))
	frameStats := make([]Stats, len(sizes))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.workers)

	offset := 0

	for idx, size := range sizes {
		start := offset
		offset += size

		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			block := make([][]int32, len(channels))
			for ch := range channels {
				block[ch] = channels[ch][start : start+size : start+size]
			}

			frame, fs := builder.build(idx, block)

			data, err := format.AppendFrame(nil, frame, bps, builder.coder)
			if err != nil {
				return fmt.Errorf("%w: frame %d: %w", ErrEncode, idx, err)
			}

			slots[idx] = data
			frameStats[idx] = fs

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "frame encoding failed")

		return nil, nil, err
	}

	return slots, frameStats, nil
}
