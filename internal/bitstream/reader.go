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

//nolint:gosec // Bit positions are bounded by the padded buffer length.
package bitstream

import "encoding/binary"

// BitBuffer provides MSB-first bit-level reading from a byte buffer.
//
// The buffer is padded with 8 zero bytes so that a single 64-bit load can
// serve any read near the end. Reads that cross the original data end set a
// sticky overrun flag, reported by Err, and return zero bits.
type BitBuffer struct {
	Buf     []byte // padded data (original + 8 zero bytes)
	Pos     int    // current byte position within Buf
	BitIdx  uint32 // 0-7, bit offset within current byte
	Size    int    // original (unpadded) byte size
	overrun bool
}

// Padding is the number of zero bytes appended past the data end.
const Padding = 8

// MaxRead is the widest field a single Read call accepts.
const MaxRead = 56

// Reset reuses the BitBuffer's backing storage, growing it only if needed.
func (b *BitBuffer) Reset(data []byte) {
	needed := len(data) + Padding
	if cap(b.Buf) < needed {
		b.Buf = make([]byte, needed)
	} else {
		b.Buf = b.Buf[:needed]
	}

	copy(b.Buf, data)
	clear(b.Buf[len(data):])

	b.Pos = 0
	b.BitIdx = 0
	b.Size = len(data)
	b.overrun = false
}

// Read reads up to MaxRead bits and returns them right-aligned.
func (b *BitBuffer) Read(numBits uint8) uint64 {
	if numBits == 0 {
		return 0
	}

	if !b.fits(uint32(numBits)) {
		return 0
	}

	val := binary.BigEndian.Uint64(b.Buf[b.Pos:])
	val = (val << b.BitIdx) >> (64 - uint32(numBits))

	b.Advance(uint32(numBits))

	return val
}

// ReadSigned reads a two's complement field of numBits bits.
func (b *BitBuffer) ReadSigned(numBits uint8) int64 {
	if numBits == 0 {
		return 0
	}

	shift := 64 - uint32(numBits)

	return int64(b.Read(numBits)<<shift) >> shift
}

// ReadOne reads a single bit.
func (b *BitBuffer) ReadOne() uint8 {
	if !b.fits(1) {
		return 0
	}

	returnBit := (b.Buf[b.Pos] >> (7 - b.BitIdx)) & 1

	b.Advance(1)

	return returnBit
}

// ReadBytes copies whole bytes into dst. The cursor must be byte aligned.
func (b *BitBuffer) ReadBytes(dst []byte) {
	if b.BitIdx != 0 {
		for i := range dst {
			dst[i] = byte(b.Read(8))
		}

		return
	}

	if !b.fits(uint32(len(dst)) * 8) {
		clear(dst)

		return
	}

	copy(dst, b.Buf[b.Pos:b.Pos+len(dst)])
	b.Pos += len(dst)
}

// Advance skips forward by numBits bits.
func (b *BitBuffer) Advance(numBits uint32) {
	b.BitIdx += numBits
	b.Pos += int(b.BitIdx >> 3)
	b.BitIdx &= 7
}

// ByteAlign advances to the next byte boundary (if not already aligned).
func (b *BitBuffer) ByteAlign() {
	if b.BitIdx == 0 {
		return
	}

	b.Advance(8 - b.BitIdx)
}

// BitPos returns the absolute bit position of the cursor.
func (b *BitBuffer) BitPos() int {
	return b.Pos*8 + int(b.BitIdx)
}

// Remaining returns the number of unread bits before the data end.
func (b *BitBuffer) Remaining() int {
	return max(b.Size*8-b.BitPos(), 0)
}

// PastEnd returns true if the read position is at or past the original data end.
func (b *BitBuffer) PastEnd() bool {
	return b.Pos >= b.Size
}

// Err reports ErrBitstreamOverrun once any read crossed the data end.
func (b *BitBuffer) Err() error {
	if b.overrun {
		return ErrBitstreamOverrun
	}

	return nil
}

// Copy returns a snapshot of the current BitBuffer state.
// The copy shares the underlying data but has independent position tracking.
func (b *BitBuffer) Copy() BitBuffer {
	return *b
}

func (b *BitBuffer) fits(numBits uint32) bool {
	if b.overrun || b.BitPos()+int(numBits) > b.Size*8 {
		b.overrun = true

		return false
	}

	return true
}
