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
	"github.com/mycophonic/saprobe-straw/internal/lpc"
	"github.com/mycophonic/saprobe-straw/internal/rice"
)

// SubframeType is the 2-bit subframe tag.
type SubframeType uint8

// Subframe tags.
const (
	TypeConstant  SubframeType = 0
	TypeRaw       SubframeType = 1
	TypeLPC       SubframeType = 2
	TypeCommonLPC SubframeType = 3
)

const (
	typeBits      = 2
	orderBits     = 5
	precisionBits = 4
	shiftBits     = 4
)

func (t SubframeType) String() string {
	switch t {
	case TypeConstant:
		return "constant"
	case TypeRaw:
		return "raw"
	case TypeLPC:
		return "lpc"
	case TypeCommonLPC:
		return "lpc_common"
	default:
		return fmt.Sprintf("subframe(%d)", uint8(t))
	}
}

// Subframe is one channel of a frame.
type Subframe interface {
	Type() SubframeType
}

// Constant is a block where every sample equals Value.
type Constant struct {
	Value int32
}

// Raw stores samples verbatim.
type Raw struct {
	Samples []int32
}

// LPC stores a predictor, warm-up samples and the Rice coded residual.
type LPC struct {
	QLP      lpc.QLP
	Warmup   []int32
	Param    uint8 // initial Rice parameter
	Residual []int32
}

// CommonLPC is an LPC subframe sharing the frame's single coefficient set.
// Only the first one in a frame serializes QLP.
type CommonLPC struct {
	LPC
}

// Type implements Subframe.
func (*Constant) Type() SubframeType { return TypeConstant }

// Type implements Subframe.
func (*Raw) Type() SubframeType { return TypeRaw }

// Type implements Subframe.
func (*LPC) Type() SubframeType { return TypeLPC }

// Type implements Subframe.
func (*CommonLPC) Type() SubframeType { return TypeCommonLPC }

// Predicted returns the LPC payload of predicted subframes.
func Predicted(sf Subframe) (*LPC, bool) {
	switch v := sf.(type) {
	case *LPC:
		return v, true
	case *CommonLPC:
		return &v.LPC, true
	default:
		return nil, false
	}
}

// RawBits returns the size of a verbatim subframe.
func RawBits(blockSize, bps int) int {
	return typeBits + blockSize*bps
}

// LPCHeaderBits returns the size of an LPC subframe excluding its residual.
func LPCHeaderBits(qlp lpc.QLP, bps int, withCoeffs bool) int {
	bits := typeBits + qlp.Order()*bps + rice.ParamBits
	if withCoeffs {
		bits += orderBits + precisionBits + shiftBits + qlp.Order()*qlp.Precision
	}

	return bits
}

// ResidualBudget is the largest residual size that keeps an LPC subframe no
// larger than its verbatim form. It is negative when no residual fits.
func ResidualBudget(qlp lpc.QLP, blockSize, bps int, withCoeffs bool) int {
	return RawBits(blockSize, bps) - LPCHeaderBits(qlp, bps, withCoeffs)
}

func writeQLP(w *bitstream.Writer, qlp lpc.QLP) error {
	order := qlp.Order()

	switch {
	case order < 1 || order > lpc.MaxOrder:
		return fmt.Errorf("%w: order %d", ErrFieldRange, order)
	case qlp.Precision < lpc.MinPrecision || qlp.Precision > lpc.MaxPrecision:
		return fmt.Errorf("%w: precision %d", ErrFieldRange, qlp.Precision)
	case qlp.Shift < 0 || qlp.Shift > lpc.MaxShift:
		return fmt.Errorf("%w: shift %d", ErrFieldRange, qlp.Shift)
	}

	w.Write(uint64(order-1), orderBits)
	w.Write(uint64(qlp.Precision-1), precisionBits)
	w.Write(uint64(qlp.Shift), shiftBits)

	for _, c := range qlp.Coeffs {
		w.WriteSigned(int64(c), uint8(qlp.Precision))
	}

	return nil
}

// writeSubframe serializes sf. withCoeffs selects whether a CommonLPC
// subframe carries the shared coefficient set.
func writeSubframe(w *bitstream.Writer, sf Subframe, bps uint8, coder rice.Coder, withCoeffs bool) error {
	w.Write(uint64(sf.Type()), typeBits)

	switch v := sf.(type) {
	case *Constant:
		w.WriteSigned(int64(v.Value), bps)

		return nil

	case *Raw:
		for _, s := range v.Samples {
			w.WriteSigned(int64(s), bps)
		}

		return nil

	case *LPC:
		return writePredicted(w, v, bps, coder, true)

	case *CommonLPC:
		return writePredicted(w, &v.LPC, bps, coder, withCoeffs)

	default:
		return fmt.Errorf("%w: unknown subframe %T", ErrSubframe, sf)
	}
}

func writePredicted(w *bitstream.Writer, sf *LPC, bps uint8, coder rice.Coder, withCoeffs bool) error {
	if withCoeffs {
		if err := writeQLP(w, sf.QLP); err != nil {
			return err
		}
	}

	if len(sf.Warmup) != sf.QLP.Order() {
		return fmt.Errorf("%w: %d warm-up samples for order %d", ErrSubframe, len(sf.Warmup), sf.QLP.Order())
	}

	for _, s := range sf.Warmup {
		w.WriteSigned(int64(s), bps)
	}

	w.Write(uint64(sf.Param), rice.ParamBits)

	_, err := coder.Encode(w, sf.Residual, sf.Param, rice.Unbounded)

	return err
}

func readQLP(bitBuf *bitstream.BitBuffer, blockSize int) (lpc.QLP, error) {
	order := int(bitBuf.Read(orderBits)) + 1
	precision := int(bitBuf.Read(precisionBits)) + 1
	shift := int(bitBuf.Read(shiftBits))

	if precision < lpc.MinPrecision {
		return lpc.QLP{}, fmt.Errorf("%w: precision %d", ErrSubframe, precision)
	}

	if order >= blockSize {
		return lpc.QLP{}, fmt.Errorf("%w: order %d for block of %d", ErrSubframe, order, blockSize)
	}

	qlp := lpc.QLP{Coeffs: make([]int32, order), Precision: precision, Shift: shift}
	for i := range qlp.Coeffs {
		qlp.Coeffs[i] = int32(bitBuf.ReadSigned(uint8(precision)))
	}

	return qlp, bitBuf.Err()
}

// subframeReader carries per-frame parse state.
type subframeReader struct {
	bitBuf    *bitstream.BitBuffer
	blockSize int
	bps       uint8
	coder     rice.Coder
	common    *lpc.QLP
}

func (r *subframeReader) read() (Subframe, error) {
	kind := SubframeType(r.bitBuf.Read(typeBits))

	switch kind {
	case TypeConstant:
		return &Constant{Value: int32(r.bitBuf.ReadSigned(r.bps))}, r.bitBuf.Err()

	case TypeRaw:
		if r.bitBuf.Remaining() < r.blockSize*int(r.bps) {
			return nil, fmt.Errorf("%w: raw subframe", ErrTruncated)
		}

		return &Raw{Samples: readSamples(r.bitBuf, r.blockSize, r.bps)}, r.bitBuf.Err()

	case TypeLPC:
		qlp, err := readQLP(r.bitBuf, r.blockSize)
		if err != nil {
			return nil, err
		}

		sf := &LPC{QLP: qlp}

		return sf, r.readPredicted(sf)

	case TypeCommonLPC:
		if r.common == nil {
			qlp, err := readQLP(r.bitBuf, r.blockSize)
			if err != nil {
				return nil, err
			}

			r.common = &qlp
		}

		sf := &CommonLPC{LPC: LPC{QLP: *r.common}}

		return sf, r.readPredicted(&sf.LPC)

	default:
		return nil, fmt.Errorf("%w: type %d", ErrSubframe, kind)
	}
}

func (r *subframeReader) readPredicted(sf *LPC) error {
	order := sf.QLP.Order()

	sf.Warmup = readSamples(r.bitBuf, order, r.bps)
	sf.Param = uint8(r.bitBuf.Read(rice.ParamBits))

	if err := r.bitBuf.Err(); err != nil {
		return err
	}

	sf.Residual = make([]int32, r.blockSize-order)

	if _, err := r.coder.Decode(r.bitBuf, sf.Residual, sf.Param); err != nil {
		return fmt.Errorf("%w: residual: %w", ErrSubframe, err)
	}

	return nil
}
