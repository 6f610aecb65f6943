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

package bitstream

import (
	"fmt"
	"math/bits"
)

// Varints use the extended UTF-8 scheme: a lead byte whose count of high one
// bits gives the total length, followed by 10xxxxxx continuation bytes.
// Seven bytes carry up to 36 bits. Surrogate ranges are ordinary values here,
// which is why unicode/utf8 does not apply.

// MaxVarint is the largest encodable value.
const MaxVarint = 1<<36 - 1

// VarintLen returns the encoded length of val in bytes, or 0 if out of range.
func VarintLen(val uint64) int {
	switch {
	case val < 1<<7:
		return 1
	case val < 1<<11:
		return 2
	case val < 1<<16:
		return 3
	case val < 1<<21:
		return 4
	case val < 1<<26:
		return 5
	case val < 1<<31:
		return 6
	case val <= MaxVarint:
		return 7
	default:
		return 0
	}
}

// AppendVarint appends the encoding of val to dst.
func AppendVarint(dst []byte, val uint64) ([]byte, error) {
	size := VarintLen(val)

	switch size {
	case 0:
		return dst, fmt.Errorf("%w: %d", ErrVarintRange, val)
	case 1:
		return append(dst, byte(val)), nil
	}

	// Lead byte: size high ones, a zero, then the top payload bits.
	lead := byte(0xFF << (8 - size))
	conts := size - 1
	dst = append(dst, lead|byte(val>>(6*conts)))

	for i := conts - 1; i >= 0; i-- {
		dst = append(dst, 0x80|byte(val>>(6*i))&0x3F)
	}

	return dst, nil
}

// WriteVarint appends the encoding of val to the bit stream.
func (w *Writer) WriteVarint(val uint64) error {
	var scratch [7]byte

	enc, err := AppendVarint(scratch[:0], val)
	if err != nil {
		return err
	}

	w.WriteBytes(enc)

	return nil
}

// ReadVarint decodes one varint at the cursor.
func (b *BitBuffer) ReadVarint() (uint64, error) {
	first := byte(b.Read(8))
	if err := b.Err(); err != nil {
		return 0, err
	}

	if first&0x80 == 0 {
		return uint64(first), nil
	}

	size := bits.LeadingZeros8(^first)
	if size < 2 || size > 7 {
		return 0, fmt.Errorf("%w: lead byte %#02x", ErrVarintInvalid, first)
	}

	val := uint64(first & (0xFF >> (size + 1)))

	for range size - 1 {
		next := byte(b.Read(8))
		if err := b.Err(); err != nil {
			return 0, err
		}

		if next&0xC0 != 0x80 {
			return 0, fmt.Errorf("%w: continuation byte %#02x", ErrVarintInvalid, next)
		}

		val = val<<6 | uint64(next&0x3F)
	}

	return val, nil
}
