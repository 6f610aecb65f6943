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

//nolint:gosec // Field widths are bounded by MaxRead.
package bitstream

// Writer accumulates MSB-first bit fields into a growing byte slice.
type Writer struct {
	buf  []byte
	acc  uint64 // pending bits, right-aligned
	nacc uint32 // number of pending bits, always < 8 between calls
}

// Mark is a restorable Writer position.
type Mark struct {
	size int
	acc  uint64
	nacc uint32
}

// NewWriter returns a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Write appends the low numBits bits of val (numBits <= MaxRead).
func (w *Writer) Write(val uint64, numBits uint8) {
	if numBits == 0 {
		return
	}

	w.acc = w.acc<<numBits | val&(1<<numBits-1)
	w.nacc += uint32(numBits)

	for w.nacc >= 8 {
		w.nacc -= 8
		w.buf = append(w.buf, byte(w.acc>>w.nacc))
	}

	w.acc &= 1<<w.nacc - 1
}

// WriteSigned appends val as a two's complement field of numBits bits.
func (w *Writer) WriteSigned(val int64, numBits uint8) {
	w.Write(uint64(val), numBits)
}

// WriteBit appends a single bit.
func (w *Writer) WriteBit(bit bool) {
	if bit {
		w.Write(1, 1)
	} else {
		w.Write(0, 1)
	}
}

// WriteOnes appends count one-bits.
func (w *Writer) WriteOnes(count int) {
	for count >= MaxRead {
		w.Write(1<<MaxRead-1, MaxRead)
		count -= MaxRead
	}

	w.Write(1<<count-1, uint8(count))
}

// WriteBytes appends whole bytes.
func (w *Writer) WriteBytes(data []byte) {
	if w.nacc == 0 {
		w.buf = append(w.buf, data...)

		return
	}

	for _, v := range data {
		w.Write(uint64(v), 8)
	}
}

// Align pads with zero bits up to the next byte boundary.
func (w *Writer) Align() {
	if w.nacc == 0 {
		return
	}

	w.Write(0, uint8(8-w.nacc))
}

// Len returns the number of bits written so far.
func (w *Writer) Len() int {
	return len(w.buf)*8 + int(w.nacc)
}

// Bytes returns the completed bytes. Pending bits are not included, so callers
// align first.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Mark records the current position.
func (w *Writer) Mark() Mark {
	return Mark{size: len(w.buf), acc: w.acc, nacc: w.nacc}
}

// Rollback discards everything written after mark.
func (w *Writer) Rollback(mark Mark) {
	w.buf = w.buf[:mark.size]
	w.acc = mark.acc
	w.nacc = mark.nacc
}
