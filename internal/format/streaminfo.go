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

//nolint:gosec // Field values are range checked before narrowing.
package format

import (
	"fmt"

	"github.com/mycophonic/saprobe-straw/internal/bitstream"
	"github.com/mycophonic/saprobe-straw/internal/correct"
)

// Magic opens every stream.
const Magic = "sTrW"

// Stream header field widths.
const (
	sampleRateBits     = 20
	bitsPerSampleBits  = 5
	frameCountBits     = 27
	totalSamplesBits   = 36
	responsivenessBits = 8
	blockTypeBits      = 7

	blockTypeStreamInfo = 0

	MaxSampleRate     = 1<<sampleRateBits - 1
	MaxFrames         = 1<<frameCountBits - 1
	MaxTotalSamples   = 1<<totalSamplesBits - 1
	MaxResponsiveness = 1<<responsivenessBits - 1
	MaxBitsPerSample  = 32
	MaxChannels       = 1 << 16
)

// StreamInfo describes the whole recording. Correction blocks are nil or
// empty when the corresponding correction was not applied.
type StreamInfo struct {
	SampleRate     int
	Channels       int
	BitsPerSample  int
	Frames         int
	TotalSamples   int64 // per channel, before shift alignment
	MD5            [16]byte
	Responsiveness int

	Shift *correct.ShiftParams
	Bias  []int8
	Gain  *correct.GainParams
}

// AlignedSamples returns the per-channel length covered by frames.
func (s *StreamInfo) AlignedSamples() int64 {
	if s.Shift == nil {
		return s.TotalSamples
	}

	return s.TotalSamples - int64(s.Shift.Spread())
}

// Validate checks every field against its serialized width.
func (s *StreamInfo) Validate() error {
	switch {
	case s.SampleRate < 0 || s.SampleRate > MaxSampleRate:
		return fmt.Errorf("%w: sample rate %d", ErrFieldRange, s.SampleRate)
	case s.Channels < 1 || s.Channels > MaxChannels:
		return fmt.Errorf("%w: channels %d", ErrFieldRange, s.Channels)
	case s.BitsPerSample < 1 || s.BitsPerSample > MaxBitsPerSample:
		return fmt.Errorf("%w: bits per sample %d", ErrFieldRange, s.BitsPerSample)
	case s.Frames < 0 || s.Frames > MaxFrames:
		return fmt.Errorf("%w: frame count %d", ErrFieldRange, s.Frames)
	case s.TotalSamples < 0 || s.TotalSamples > MaxTotalSamples:
		return fmt.Errorf("%w: total samples %d", ErrFieldRange, s.TotalSamples)
	case s.Responsiveness < 0 || s.Responsiveness > MaxResponsiveness:
		return fmt.Errorf("%w: responsiveness %d", ErrFieldRange, s.Responsiveness)
	case s.Bias != nil && len(s.Bias) != s.Channels:
		return fmt.Errorf("%w: %d bias values", ErrFieldRange, len(s.Bias))
	}

	if s.Gain != nil {
		if len(s.Gain.Factors) != s.Channels || s.Gain.Shift > 1<<correct.GainShiftBits-1 {
			return fmt.Errorf("%w: gain block", ErrFieldRange)
		}

		for _, f := range s.Gain.Factors {
			if f < 1<<s.Gain.Shift || f > 1<<correct.GainFactorBits-1 {
				return fmt.Errorf("%w: gain factor %d", ErrFieldRange, f)
			}
		}
	}

	if s.Shift != nil {
		sp := s.Shift
		if len(sp.Offsets) != s.Channels || len(sp.Lead) != s.Channels || len(sp.Trail) != s.Channels ||
			sp.Leading < 0 || sp.Leading >= s.Channels {
			return fmt.Errorf("%w: shift block", ErrFieldRange)
		}

		spread := sp.Spread()
		for idx, o := range sp.Offsets {
			if o > 1<<correct.OffsetBits-1 || len(sp.Lead[idx]) != int(o) || len(sp.Trail[idx]) != spread-int(o) {
				return fmt.Errorf("%w: shift channel %d", ErrFieldRange, idx)
			}
		}

		if int64(spread) > s.TotalSamples {
			return fmt.Errorf("%w: shift spread %d", ErrFieldRange, spread)
		}
	}

	return nil
}

// AppendStreamInfo appends the magic and stream header to dst.
func AppendStreamInfo(dst []byte, info *StreamInfo) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return dst, err
	}

	w := bitstream.NewWriter(64)
	bps := uint8(info.BitsPerSample)

	w.WriteBytes([]byte(Magic))
	w.WriteBit(true) // last metadata block
	w.Write(blockTypeStreamInfo, blockTypeBits)
	w.Write(uint64(info.SampleRate), sampleRateBits)

	if err := w.WriteVarint(uint64(info.Channels - 1)); err != nil {
		return dst, err
	}

	w.Write(uint64(info.BitsPerSample-1), bitsPerSampleBits)
	w.Write(uint64(info.Frames), frameCountBits)
	w.Write(uint64(info.TotalSamples), totalSamplesBits)
	w.WriteBytes(info.MD5[:])
	w.Write(uint64(info.Responsiveness), responsivenessBits)

	w.WriteBit(info.Shift != nil)

	if sp := info.Shift; sp != nil {
		if err := w.WriteVarint(uint64(sp.Leading)); err != nil {
			return dst, err
		}

		for _, o := range sp.Offsets {
			w.Write(uint64(o), correct.OffsetBits)
		}

		for idx := range sp.Offsets {
			for _, v := range sp.Lead[idx] {
				w.WriteSigned(int64(v), bps)
			}

			for _, v := range sp.Trail[idx] {
				w.WriteSigned(int64(v), bps)
			}
		}
	}

	w.WriteBit(info.Bias != nil)

	for _, b := range info.Bias {
		w.WriteSigned(int64(b), correct.BiasBits)
	}

	w.WriteBit(info.Gain != nil)

	if g := info.Gain; g != nil {
		w.Write(uint64(g.Shift), correct.GainShiftBits)

		for _, f := range g.Factors {
			w.Write(uint64(f), correct.GainFactorBits)
		}
	}

	w.Align()

	return append(dst, w.Bytes()...), nil
}

// ParseStreamInfo reads the magic and stream header, leaving the cursor on
// the first frame.
func ParseStreamInfo(bitBuf *bitstream.BitBuffer) (*StreamInfo, error) {
	var magic [len(Magic)]byte

	bitBuf.ReadBytes(magic[:])

	if bitBuf.Err() != nil || string(magic[:]) != Magic {
		return nil, ErrMagic
	}

	bitBuf.ReadOne() // last-block flag; only one block type exists

	if blockType := bitBuf.Read(blockTypeBits); blockType != blockTypeStreamInfo {
		return nil, fmt.Errorf("%w: metadata block type %d", ErrHeader, blockType)
	}

	info := &StreamInfo{SampleRate: int(bitBuf.Read(sampleRateBits))}

	channels, err := bitBuf.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("%w: channel count: %w", ErrHeader, err)
	}

	if channels >= MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d", ErrHeader, channels+1)
	}

	info.Channels = int(channels) + 1
	info.BitsPerSample = int(bitBuf.Read(bitsPerSampleBits)) + 1
	info.Frames = int(bitBuf.Read(frameCountBits))
	info.TotalSamples = int64(bitBuf.Read(totalSamplesBits))
	bitBuf.ReadBytes(info.MD5[:])
	info.Responsiveness = int(bitBuf.Read(responsivenessBits))

	bps := uint8(info.BitsPerSample)

	if bitBuf.ReadOne() == 1 {
		leading, err := bitBuf.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("%w: shift leading channel: %w", ErrHeader, err)
		}

		sp := &correct.ShiftParams{
			Leading: int(min(leading, MaxChannels)),
			Offsets: make([]uint8, info.Channels),
			Lead:    make([][]int32, info.Channels),
			Trail:   make([][]int32, info.Channels),
		}

		for idx := range sp.Offsets {
			sp.Offsets[idx] = uint8(bitBuf.Read(correct.OffsetBits))
		}

		spread := sp.Spread()

		for idx, o := range sp.Offsets {
			sp.Lead[idx] = readSamples(bitBuf, int(o), bps)
			sp.Trail[idx] = readSamples(bitBuf, spread-int(o), bps)
		}

		info.Shift = sp
	}

	if bitBuf.ReadOne() == 1 {
		info.Bias = make([]int8, info.Channels)
		for idx := range info.Bias {
			info.Bias[idx] = int8(bitBuf.ReadSigned(correct.BiasBits))
		}
	}

	if bitBuf.ReadOne() == 1 {
		g := &correct.GainParams{
			Shift:   uint8(bitBuf.Read(correct.GainShiftBits)),
			Factors: make([]uint16, info.Channels),
		}

		for idx := range g.Factors {
			g.Factors[idx] = uint16(bitBuf.Read(correct.GainFactorBits))
		}

		info.Gain = g
	}

	if err := bitBuf.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}

	bitBuf.ByteAlign()

	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}

	return info, nil
}

func readSamples(bitBuf *bitstream.BitBuffer, count int, bps uint8) []int32 {
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(bitBuf.ReadSigned(bps))
	}

	return out
}
