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

//nolint:gosec // Samples are range checked against the bit depth before narrowing.
package straw

import (
	"encoding/binary"
	"fmt"

	"github.com/mycophonic/saprobe-straw/internal/format"
)

// BitDepth represents the bit depth of PCM audio samples.
type BitDepth uint

// Supported PCM bit depths.
const (
	Depth16 BitDepth = 16
	Depth24 BitDepth = 24
)

// BytesPerSample returns the number of bytes needed to store one sample.
func (d BitDepth) BytesPerSample() int {
	switch d {
	case Depth16:
		return 2
	case Depth24:
		return 3
	default:
		panic(fmt.Sprintf("straw: BytesPerSample called with unsupported bit depth %d", d))
	}
}

// Valid reports whether d is supported.
func (d BitDepth) Valid() bool {
	return d == Depth16 || d == Depth24
}

// PCMFormat describes the format of raw PCM audio data.
type PCMFormat struct {
	SampleRate int
	BitDepth   BitDepth
	Channels   uint
}

// Validate checks that the format can be stored in a stream.
func (f PCMFormat) Validate() error {
	switch {
	case !f.BitDepth.Valid():
		return fmt.Errorf("%w: bit depth %d", ErrConfig, f.BitDepth)
	case f.Channels < 1 || f.Channels > format.MaxChannels:
		return fmt.Errorf("%w: %d channels", ErrConfig, f.Channels)
	case f.SampleRate < 1 || f.SampleRate > format.MaxSampleRate:
		return fmt.Errorf("%w: sample rate %d", ErrConfig, f.SampleRate)
	}

	return nil
}

// Buffer holds planar signed PCM: one slice per channel, all the same length.
type Buffer struct {
	Format   PCMFormat
	Channels [][]int32
}

// NewBuffer allocates a zeroed buffer of samples per channel.
func NewBuffer(pcmFormat PCMFormat, samples int) *Buffer {
	channels := make([][]int32, pcmFormat.Channels)
	for idx := range channels {
		channels[idx] = make([]int32, samples)
	}

	return &Buffer{Format: pcmFormat, Channels: channels}
}

// NewBufferFromPCM splits interleaved little-endian signed PCM into channels.
func NewBufferFromPCM(pcm []byte, pcmFormat PCMFormat) (*Buffer, error) {
	if err := pcmFormat.Validate(); err != nil {
		return nil, err
	}

	frameBytes := int(pcmFormat.Channels) * pcmFormat.BitDepth.BytesPerSample()
	if len(pcm)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte sample frames", ErrConfig, len(pcm), frameBytes)
	}

	buf := NewBuffer(pcmFormat, len(pcm)/frameBytes)

	for idx, ch := range buf.Channels {
		switch pcmFormat.BitDepth {
		case Depth16:
			readMono16(pcm, ch, idx, len(buf.Channels))
		case Depth24:
			readMono24(pcm, ch, idx, len(buf.Channels))
		}
	}

	return buf, nil
}

// Samples returns the number of samples per channel.
func (b *Buffer) Samples() int {
	if len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

// Validate checks the format and that the channel slices match it.
func (b *Buffer) Validate() error {
	if err := b.Format.Validate(); err != nil {
		return err
	}

	if len(b.Channels) != int(b.Format.Channels) {
		return fmt.Errorf("%w: %d channel slices for %d channels", ErrConfig, len(b.Channels), b.Format.Channels)
	}

	samples := b.Samples()
	if int64(samples) > format.MaxTotalSamples {
		return fmt.Errorf("%w: %d samples per channel", ErrConfig, samples)
	}

	lo := -int32(1) << (b.Format.BitDepth - 1)
	hi := int32(1)<<(b.Format.BitDepth-1) - 1

	for idx, ch := range b.Channels {
		if len(ch) != samples {
			return fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d", ErrConfig, idx, len(ch), samples)
		}

		for _, v := range ch {
			if v < lo || v > hi {
				return fmt.Errorf("%w: channel %d sample %d exceeds %d bits", ErrConfig, idx, v, b.Format.BitDepth)
			}
		}
	}

	return nil
}

// PCM interleaves the channels into little-endian signed PCM.
func (b *Buffer) PCM() []byte {
	numChan := len(b.Channels)
	out := make([]byte, b.Samples()*numChan*b.Format.BitDepth.BytesPerSample())

	for idx, ch := range b.Channels {
		switch b.Format.BitDepth {
		case Depth16:
			writeMono16(out, ch, idx, numChan)
		case Depth24:
			writeMono24(out, ch, idx, numChan)
		}
	}

	return out
}

func readMono16(pcm []byte, dst []int32, chanIdx, numChan int) {
	stride := numChan * 2
	pos := chanIdx * 2

	for idx := range dst {
		dst[idx] = int32(int16(binary.LittleEndian.Uint16(pcm[pos:])))
		pos += stride
	}
}

func readMono24(pcm []byte, dst []int32, chanIdx, numChan int) {
	stride := numChan * 3
	pos := chanIdx * 3

	for idx := range dst {
		src := pcm[pos : pos+3 : pos+3]
		val := int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16
		dst[idx] = val << 8 >> 8
		pos += stride
	}
}

func writeMono16(out []byte, src []int32, chanIdx, numChan int) {
	stride := numChan * 2
	pos := chanIdx * 2

	for _, val := range src {
		binary.LittleEndian.PutUint16(out[pos:], uint16(int16(val)))
		pos += stride
	}
}

func writeMono24(out []byte, src []int32, chanIdx, numChan int) {
	stride := numChan * 3
	pos := chanIdx * 3

	for _, val := range src {
		dst := out[pos : pos+3 : pos+3]
		dst[0] = byte(val)
		dst[1] = byte(val >> 8)
		dst[2] = byte(val >> 16)
		pos += stride
	}
}
