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
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"slices"

	"github.com/mycophonic/saprobe-straw/internal/bitstream"
	"github.com/mycophonic/saprobe-straw/internal/lpc"
	"github.com/mycophonic/saprobe-straw/internal/rice"
)

// Frame header layout.
const (
	SyncCode = 0x2AAA // 0b10101010101010

	syncBits      = 14
	frameSizeLen  = 4
	crc8Len       = 1
	crc16Len      = 2
	maxVarintLen  = 7
	fixedHeadLen  = 2 // sync, mid-side flag, block size kind
	blockSizeKind = 1 // 16-bit size-1

	// MaxBlockSize is the largest block a frame header can describe.
	MaxBlockSize = 1 << 16
)

// Frame is one block of every channel.
type Frame struct {
	Seq       uint64
	BlockSize int
	MidSide   []bool // per channel pair (2i, 2i+1); nil when unused
	Subframes []Subframe
}

// Header is the parsed fixed part of a frame.
type Header struct {
	Seq       uint64
	BlockSize int
	MidSide   []bool
	Size      int // total frame bytes, header to CRC-16 inclusive
	HeaderLen int // bytes up to and including CRC-8
}

// Pairs returns the number of mid-side channel pairs for channels.
func Pairs(channels int) int {
	return channels / 2
}

func maskLen(channels int) int {
	return (Pairs(channels) + 7) / 8
}

// maxHeaderLen bounds the frame header size for channels.
func maxHeaderLen(channels int) int {
	return fixedHeadLen + 2 + maxVarintLen + maskLen(channels) + frameSizeLen + crc8Len
}

// AppendFrame serializes f and appends it to dst.
func AppendFrame(dst []byte, frame *Frame, bps int, coder rice.Coder) ([]byte, error) {
	channels := len(frame.Subframes)

	switch {
	case channels == 0:
		return dst, fmt.Errorf("%w: frame without subframes", ErrSubframe)
	case frame.BlockSize < 1 || frame.BlockSize > MaxBlockSize:
		return dst, fmt.Errorf("%w: block size %d", ErrFieldRange, frame.BlockSize)
	case frame.MidSide != nil && len(frame.MidSide) != Pairs(channels):
		return dst, fmt.Errorf("%w: %d mid-side flags for %d channels", ErrFieldRange, len(frame.MidSide), channels)
	}

	body := bitstream.NewWriter(frame.BlockSize * channels * bps / 8)

	var common *lpc.QLP

	for idx, sf := range frame.Subframes {
		withCoeffs := false

		if cl, ok := sf.(*CommonLPC); ok {
			if common == nil {
				common = &cl.QLP
				withCoeffs = true
			} else if !sameQLP(*common, cl.QLP) {
				return dst, fmt.Errorf("%w: channel %d does not share the frame coefficients", ErrSubframe, idx)
			}
		}

		if err := writeSubframe(body, sf, uint8(bps), coder, withCoeffs); err != nil {
			return dst, fmt.Errorf("channel %d: %w", idx, err)
		}
	}

	body.Align()

	head, err := appendHeader(nil, frame, channels)
	if err != nil {
		return dst, err
	}

	size := len(head) + frameSizeLen + crc8Len + len(body.Bytes()) + crc16Len
	if size > math.MaxUint32 {
		return dst, fmt.Errorf("%w: frame of %d bytes", ErrFieldRange, size)
	}

	start := len(dst)

	dst = append(dst, head...)
	dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	dst = append(dst, bitstream.CRC8(dst[start:]))
	dst = append(dst, body.Bytes()...)
	dst = binary.BigEndian.AppendUint16(dst, bitstream.CRC16(dst[start:]))

	return dst, nil
}

func sameQLP(a, b lpc.QLP) bool {
	return a.Precision == b.Precision && a.Shift == b.Shift && slices.Equal(a.Coeffs, b.Coeffs)
}

// appendHeader writes the header fields preceding the frame size.
func appendHeader(dst []byte, frame *Frame, channels int) ([]byte, error) {
	w := bitstream.NewWriter(16)

	ms := slices.Contains(frame.MidSide, true)

	w.Write(SyncCode, syncBits)
	w.WriteBit(ms)

	if exp := bits.TrailingZeros(uint(frame.BlockSize)); frame.BlockSize == 1<<exp {
		w.WriteBit(false)
		w.Write(uint64(exp), 8)
	} else {
		w.WriteBit(true)
		w.Write(uint64(frame.BlockSize-1), 16)
	}

	if err := w.WriteVarint(frame.Seq); err != nil {
		return dst, fmt.Errorf("%w: sequence number: %w", ErrFieldRange, err)
	}

	if ms {
		mask := make([]byte, maskLen(channels))
		for pair, on := range frame.MidSide {
			if on {
				mask[pair/8] |= 0x80 >> (pair % 8)
			}
		}

		w.WriteBytes(mask)
	}

	return append(dst, w.Bytes()...), nil
}

// ParseHeader reads the frame header at the start of data and checks its sync
// code, CRC-8 and announced size. It does not touch the frame body.
func ParseHeader(data []byte, channels int) (Header, error) {
	var bitBuf bitstream.BitBuffer

	bitBuf.Reset(data[:min(len(data), maxHeaderLen(channels))])

	if bitBuf.Read(syncBits) != SyncCode {
		if bitBuf.Err() != nil {
			return Header{}, fmt.Errorf("%w: header", ErrTruncated)
		}

		return Header{}, ErrSyncLost
	}

	var hdr Header

	ms := bitBuf.ReadOne() == 1

	if bitBuf.ReadOne() == blockSizeKind {
		hdr.BlockSize = int(bitBuf.Read(16)) + 1
	} else {
		exp := bitBuf.Read(8)
		if exp > 16 {
			return Header{}, fmt.Errorf("%w: block size exponent %d", ErrHeader, exp)
		}

		hdr.BlockSize = 1 << exp
	}

	seq, err := bitBuf.ReadVarint()
	if err != nil {
		return Header{}, fmt.Errorf("%w: sequence number: %w", ErrTruncated, err)
	}

	hdr.Seq = seq

	if ms {
		mask := make([]byte, maskLen(channels))
		bitBuf.ReadBytes(mask)

		hdr.MidSide = make([]bool, Pairs(channels))
		for pair := range hdr.MidSide {
			hdr.MidSide[pair] = mask[pair/8]&(0x80>>(pair%8)) != 0
		}
	}

	var size [frameSizeLen]byte

	bitBuf.ReadBytes(size[:])
	hdr.Size = int(binary.BigEndian.Uint32(size[:]))

	crcPos := bitBuf.Pos
	crc := uint8(bitBuf.Read(8))

	if bitBuf.Err() != nil {
		return Header{}, fmt.Errorf("%w: header", ErrTruncated)
	}

	if bitstream.CRC8(data[:crcPos]) != crc {
		return Header{}, ErrHeaderCRC
	}

	hdr.HeaderLen = crcPos + crc8Len

	if hdr.Size < hdr.HeaderLen+crc16Len || hdr.Size > len(data) {
		return Header{}, fmt.Errorf("%w: frame size %d, %d bytes available", ErrTruncated, hdr.Size, len(data))
	}

	return hdr, nil
}

// ParseFrame parses the frame at the start of data, verifying both checksums.
func ParseFrame(data []byte, channels, bps int, coder rice.Coder) (*Frame, error) {
	hdr, err := ParseHeader(data, channels)
	if err != nil {
		return nil, err
	}

	payload := data[:hdr.Size-crc16Len]
	if bitstream.CRC16(payload) != binary.BigEndian.Uint16(data[len(payload):]) {
		return nil, ErrFrameCRC
	}

	frame := &Frame{
		Seq:       hdr.Seq,
		BlockSize: hdr.BlockSize,
		MidSide:   hdr.MidSide,
		Subframes: make([]Subframe, channels),
	}

	reader := subframeReader{
		bitBuf:    &bitstream.BitBuffer{},
		blockSize: hdr.BlockSize,
		bps:       uint8(bps),
		coder:     coder,
	}

	reader.bitBuf.Reset(payload[hdr.HeaderLen:])

	for idx := range frame.Subframes {
		if frame.Subframes[idx], err = reader.read(); err != nil {
			return nil, fmt.Errorf("channel %d: %w", idx, err)
		}
	}

	reader.bitBuf.ByteAlign()

	if !reader.bitBuf.PastEnd() {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSubframe, reader.bitBuf.Size-reader.bitBuf.Pos)
	}

	return frame, nil
}
