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
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mycophonic/saprobe-straw/internal/bitstream"
	"github.com/mycophonic/saprobe-straw/internal/correct"
	"github.com/mycophonic/saprobe-straw/internal/format"
	"github.com/mycophonic/saprobe-straw/internal/lpc"
	"github.com/mycophonic/saprobe-straw/internal/rice"
)

// Decoder reconstructs PCM buffers from straw streams. It is safe for
// concurrent use.
type Decoder struct {
	opts options
}

// NewDecoder returns a decoder.
func NewDecoder(opts ...Option) *Decoder {
	return &Decoder{opts: newOptions(opts)}
}

// minFrameLen is the smallest possible frame: a 9-byte header, one
// constant subframe and the CRC-16.
const minFrameLen = 12

// frameSpan locates one frame in the stream and in the output.
type frameSpan struct {
	offset int // byte offset in the stream
	size   int // frame bytes
	start  int // first sample
	length int // block size
}

// Decode reads a complete stream from r. Audio is returned only once the
// content hash has been verified.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (*Buffer, Stats, error) {
	start := time.Now()

	ctx, span := d.opts.tracer.Start(ctx, "straw.decode")
	defer span.End()

	buf, stats, err := d.decode(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		d.opts.logger.WithError(err).Error("straw decode failed")

		return nil, stats, err
	}

	span.SetAttributes(
		attribute.Int("audio.channels", int(buf.Format.Channels)),
		attribute.Int("audio.samples", buf.Samples()),
		attribute.Int("straw.frames", stats.Frames),
	)

	d.opts.metrics.observeStats(directionDecode, stats, time.Since(start))

	d.opts.logger.WithFields(logrus.Fields{
		"frames":       stats.Frames,
		"pcm_bytes":    stats.PCMBytes,
		"stream_bytes": stats.StreamBytes,
		"elapsed":      time.Since(start),
	}).Info("straw decode complete")

	return buf, stats, nil
}

func (d *Decoder) decode(ctx context.Context, r io.Reader) (*Buffer, Stats, error) {
	stats := newStats()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, stats, fmt.Errorf("reading stream: %w", err)
	}

	stats.StreamBytes = int64(len(data))

	var bitBuf bitstream.BitBuffer

	bitBuf.Reset(data)

	info, err := format.ParseStreamInfo(&bitBuf)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	pcmFormat := PCMFormat{
		SampleRate: info.SampleRate,
		BitDepth:   BitDepth(info.BitsPerSample),
		Channels:   uint(info.Channels),
	}

	if !pcmFormat.BitDepth.Valid() {
		return nil, stats, fmt.Errorf("%w: %w: unsupported bit depth %d", ErrDecode, format.ErrHeader, info.BitsPerSample)
	}

	spans, err := scanFrames(data, bitBuf.Pos, info)
	if err != nil {
		return nil, stats, err
	}

	channels := make([][]int32, info.Channels)
	for idx := range channels {
		channels[idx] = make([]int32, info.AlignedSamples())
	}

	frameStats, err := d.decodeFrames(ctx, data, spans, info, channels)
	if err != nil {
		return nil, stats, err
	}

	for _, fs := range frameStats {
		stats.merge(fs)
	}

	if channels, err = revertCorrections(channels, info); err != nil {
		return nil, stats, err
	}

	buf := &Buffer{Format: pcmFormat, Channels: channels}

	_, span := d.opts.tracer.Start(ctx, "straw.decode.verify")
	defer span.End()

	// Samples past the bit depth would be truncated by PCM and could not match.
	if err := buf.Validate(); err != nil {
		span.SetStatus(codes.Error, "decoded samples out of range")

		return nil, stats, fmt.Errorf("%w: %v", ErrIntegrity, err) //nolint:errorlint // Not a config error.
	}

	pcm := buf.PCM()
	stats.PCMBytes = int64(len(pcm))

	if md5.Sum(pcm) != info.MD5 { //nolint:gosec // Content hash.
		span.SetStatus(codes.Error, "content hash mismatch")

		return nil, stats, fmt.Errorf("%w: decoded audio differs from the recorded MD5", ErrIntegrity)
	}

	return buf, stats, nil
}

// scanFrames walks frame headers sequentially from offset, checking sync
// codes, header checksums, sequence numbers and sample coverage.
func scanFrames(data []byte, offset int, info *format.StreamInfo) ([]frameSpan, error) {
	// The frame count is untrusted until every header has been seen.
	spans := make([]frameSpan, 0, min(info.Frames, len(data)/minFrameLen))
	sample := 0

	for idx := range info.Frames {
		hdr, err := format.ParseHeader(data[offset:], info.Channels)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d at byte %d: %w", ErrDecode, idx, offset, err)
		}

		if hdr.Seq != uint64(idx) {
			return nil, fmt.Errorf("%w: frame %d: %w: sequence number %d", ErrDecode, idx, format.ErrSyncLost, hdr.Seq)
		}

		spans = append(spans, frameSpan{offset: offset, size: hdr.Size, start: sample, length: hdr.BlockSize})
		offset += hdr.Size
		sample += hdr.BlockSize
	}

	if int64(sample) != info.AlignedSamples() {
		return nil, fmt.Errorf("%w: %w: frames hold %d samples, header announces %d",
			ErrDecode, format.ErrTruncated, sample, info.AlignedSamples())
	}

	if offset != len(data) {
		return nil, fmt.Errorf("%w: %d bytes after the last frame", ErrDecode, len(data)-offset)
	}

	return spans, nil
}

func (d *Decoder) decodeFrames(
	ctx context.Context, data []byte, spans []frameSpan, info *format.StreamInfo, channels [][]int32,
) ([]Stats, error) {
	ctx, span := d.opts.tracer.Start(ctx, "straw.decode.frames",
		trace.WithAttributes(attribute.Int("straw.frames", len(spans))))
	defer span.End()

	coder := rice.Coder{Responsiveness: info.Responsiveness}
	frameStats := make([]Stats, len(spans))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(d.opts.workers)

	for idx, fs := range spans {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			frame, err := format.ParseFrame(data[fs.offset:fs.offset+fs.size], info.Channels, info.BitsPerSample, coder)
			if err != nil {
				return fmt.Errorf("%w: frame %d: %w", ErrDecode, idx, err)
			}

			out := make([][]int32, len(channels))
			for ch := range channels {
				out[ch] = channels[ch][fs.start : fs.start+fs.length : fs.start+fs.length]
			}

			if err := reconstruct(frame, out); err != nil {
				return fmt.Errorf("%w: frame %d: %w", ErrDecode, idx, err)
			}

			stats := newStats()
			stats.Frames = 1

			for _, sf := range frame.Subframes {
				stats.addSubframe(sf.Type())
			}

			for _, on := range frame.MidSide {
				if on {
					stats.MidSidePairs++
				}
			}

			frameStats[idx] = stats

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "frame decoding failed")

		return nil, err
	}

	return frameStats, nil
}

// reconstruct expands a parsed frame into out, one slice of BlockSize
// samples per channel.
func reconstruct(frame *format.Frame, out [][]int32) error {
	for pair, on := range frame.MidSide {
		if !on {
			continue
		}

		side, okA := format.Predicted(frame.Subframes[2*pair])
		mid, okB := format.Predicted(frame.Subframes[2*pair+1])

		if !okA || !okB || len(side.Residual) != len(mid.Residual) {
			return fmt.Errorf("%w: mid-side pair %d is not a pair of equal order predicted subframes", format.ErrSubframe, pair)
		}

		left := make([]int32, len(side.Residual))
		right := make([]int32, len(mid.Residual))
		correct.LeftRight(side.Residual, mid.Residual, left, right)

		side.Residual, mid.Residual = left, right
	}

	for idx, sf := range frame.Subframes {
		dst := out[idx]

		switch v := sf.(type) {
		case *format.Constant:
			for i := range dst {
				dst[i] = v.Value
			}

		case *format.Raw:
			copy(dst, v.Samples)

		case *format.LPC:
			lpc.Restore(v.Warmup, v.Residual, v.QLP, dst)

		case *format.CommonLPC:
			lpc.Restore(v.Warmup, v.Residual, v.QLP, dst)

		default:
			return fmt.Errorf("%w: channel %d: unexpected %T", format.ErrSubframe, idx, sf)
		}
	}

	return nil
}

// revertCorrections undoes gain, bias and shift in that order.
func revertCorrections(channels [][]int32, info *format.StreamInfo) ([][]int32, error) {
	if info.Gain != nil {
		if err := correct.RevertGain(channels, *info.Gain); err != nil {
			return nil, fmt.Errorf("%w: gain: %w", ErrDecode, err)
		}
	}

	if info.Bias != nil {
		if err := correct.RevertBias(channels, info.Bias); err != nil {
			return nil, fmt.Errorf("%w: bias: %w", ErrDecode, err)
		}
	}

	if info.Shift != nil {
		full, err := correct.RevertShift(channels, *info.Shift)
		if err != nil {
			return nil, fmt.Errorf("%w: shift: %w", ErrDecode, err)
		}

		channels = full
	}

	return channels, nil
}
