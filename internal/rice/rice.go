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

//nolint:gosec // Code words are bounded to 32 bits by construction.
package rice

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/mycophonic/saprobe-straw/internal/bitstream"
)

// Rice (Golomb power-of-two) residual coder.
//
// A value v is zigzag mapped to u, then written as u>>k one-bits, a
// terminating zero bit, and the low k bits of u, MSB first.

const (
	// MaxParam is the largest Rice parameter (4-bit field).
	MaxParam = 15

	// ParamBits is the width of the serialized parameter.
	ParamBits = 4

	// DefaultWindow is the estimation prefix used in static mode.
	DefaultWindow = 20

	// Unbounded disables the bit budget in Encode.
	Unbounded = -1
)

// Zigzag maps signed values onto unsigned ones: 0, -1, 1, -2 ... -> 0, 1, 2, 3 ...
func Zigzag(val int32) uint32 {
	return uint32(val<<1) ^ uint32(val>>31) //revive:disable-line:add-constant
}

// Unzigzag inverts Zigzag.
func Unzigzag(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

// Estimate returns the Rice parameter for values: the rounded base-2 log of
// their mean zigzag magnitude, clamped to [0, MaxParam].
func Estimate(values []int32) uint8 {
	if len(values) == 0 {
		return 0
	}

	var sum uint64
	for _, v := range values {
		sum += uint64(Zigzag(v))
	}

	if sum == 0 {
		return 0
	}

	mean := float64(sum) / float64(len(values))
	k := math.RoundToEven(min(max(math.Log2(mean), 0), MaxParam))

	return uint8(k)
}

// Coder holds the adaptation policy shared by encoder and decoder.
//
// With Responsiveness R > 0 the parameter is re-estimated after every R coded
// values from the last R values. Responsiveness 0 keeps one parameter for the
// whole residual.
type Coder struct {
	Responsiveness int
}

// Adaptive reports whether the parameter changes along the residual.
func (c Coder) Adaptive() bool {
	return c.Responsiveness > 0
}

// InitialParam estimates the parameter serialized ahead of the residual.
func (c Coder) InitialParam(values []int32) uint8 {
	window := DefaultWindow
	if c.Adaptive() {
		window = c.Responsiveness
	}

	return Estimate(values[:min(window, len(values))])
}

// next returns the parameter in effect after coded values have been emitted.
func (c Coder) next(history []int32, coded int, current uint8) uint8 {
	if !c.Adaptive() || coded%c.Responsiveness != 0 {
		return current
	}

	return Estimate(history[coded-c.Responsiveness : coded])
}

// Encode writes values starting with parameter k. It returns the number of
// bits written. When budget is not Unbounded and the code would exceed it,
// the writer is rolled back and ErrOverflow is returned.
func (c Coder) Encode(w *bitstream.Writer, values []int32, k uint8, budget int) (int, error) {
	if k > MaxParam {
		return 0, fmt.Errorf("%w: %d", ErrInvalidParam, k)
	}

	mark := w.Mark()
	used := 0

	for i, v := range values {
		u := Zigzag(v)
		q := int(u >> k)
		cost := q + 1 + int(k)

		if budget != Unbounded && used+cost > budget {
			w.Rollback(mark)

			return 0, fmt.Errorf("%w: %d bits at value %d of %d", ErrOverflow, used+cost, i, len(values))
		}

		w.WriteOnes(q)
		w.Write(0, 1)
		w.Write(uint64(u), k)
		used += cost

		k = c.next(values, i+1, k)
	}

	return used, nil
}

// Cost returns the number of bits Encode would emit for values, with the same
// budget semantics, without writing anything.
func (c Coder) Cost(values []int32, k uint8, budget int) (int, error) {
	if k > MaxParam {
		return 0, fmt.Errorf("%w: %d", ErrInvalidParam, k)
	}

	used := 0

	for i, v := range values {
		used += int(Zigzag(v)>>k) + 1 + int(k)

		if budget != Unbounded && used > budget {
			return 0, fmt.Errorf("%w: %d bits at value %d of %d", ErrOverflow, used, i, len(values))
		}

		k = c.next(values, i+1, k)
	}

	return used, nil
}

// read32bit reads 4 bytes big-endian from a byte slice at the given offset.
func read32bit(buf []byte, offset uint32) uint32 {
	return binary.BigEndian.Uint32(buf[offset:])
}

// Decode fills out with decoded values starting with parameter k, advancing
// the cursor. It returns the number of bits consumed.
func (c Coder) Decode(bitBuf *bitstream.BitBuffer, out []int32, k uint8) (int, error) {
	if k > MaxParam {
		return 0, fmt.Errorf("%w: %d", ErrInvalidParam, k)
	}

	if err := bitBuf.Err(); err != nil {
		return 0, err
	}

	input := bitBuf.Buf[bitBuf.Pos:]
	startPos := bitBuf.BitIdx
	maxPos := uint32(bitBuf.Size-bitBuf.Pos) * 8
	bitPos := startPos

	for idx := range out {
		// Unary prefix: count one-bits, 32 bits at a time.
		var q uint32

		for {
			if bitPos >= maxPos {
				return 0, ErrBitstreamOverrun
			}

			avail := 32 - bitPos&7
			streamLong := read32bit(input, bitPos>>3) << (bitPos & 7)
			ones := uint32(bits.LeadingZeros32(^streamLong))

			if ones < avail {
				q += ones
				bitPos += ones + 1

				break
			}

			q += avail
			bitPos += avail
		}

		if bitPos > maxPos || bitPos+uint32(k) > maxPos {
			return 0, ErrBitstreamOverrun
		}

		if q > math.MaxUint32>>k {
			return 0, fmt.Errorf("%w: prefix %d with k=%d", ErrInvalidCode, q, k)
		}

		u := q << k
		if k > 0 {
			low := read32bit(input, bitPos>>3) << (bitPos & 7) >> (32 - uint32(k))
			u |= low
			bitPos += uint32(k)
		}

		out[idx] = Unzigzag(u)

		k = c.next(out, idx+1, k)
	}

	consumed := bitPos - startPos
	bitBuf.Advance(consumed)

	return int(consumed), nil
}
