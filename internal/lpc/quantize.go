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

package lpc

import (
	"fmt"
	"math"
)

const (
	// MinPrecision and MaxPrecision bound the coefficient width in bits,
	// sign included (4-bit precision-1 field).
	MinPrecision = 2
	MaxPrecision = 16

	// MaxShift is the largest quantization shift (4-bit field).
	MaxShift = 15
)

// QLP is a quantized predictor: integer coefficients scaled by 2^Shift.
type QLP struct {
	Coeffs    []int32
	Precision int
	Shift     int
}

// Order returns the predictor order.
func (q QLP) Order() int {
	return len(q.Coeffs)
}

// Quantize converts predictor coefficients to Precision-bit integers with a
// shared power-of-two scale. Rounding error is carried into the next
// coefficient so the quantized filter tracks the sum of the originals.
func Quantize(coeffs []float64, precision int) (QLP, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return QLP{}, fmt.Errorf("%w: %d", ErrPrecision, precision)
	}

	if len(coeffs) == 0 || len(coeffs) > MaxOrder {
		return QLP{}, fmt.Errorf("%w: %d", ErrOrder, len(coeffs))
	}

	// One bit is reserved for the sign.
	bits := precision - 1
	qmax := int64(1)<<bits - 1
	qmin := -int64(1) << bits

	var cmax float64
	for _, c := range coeffs {
		cmax = max(cmax, math.Abs(c))
	}

	if !(cmax > 0) || math.IsInf(cmax, 0) {
		return QLP{}, fmt.Errorf("%w: max magnitude %v", ErrQuantize, cmax)
	}

	_, exp := math.Frexp(cmax)
	log2cmax := exp - 1

	shift := min(bits-log2cmax-1, MaxShift)
	if shift < 0 {
		return QLP{}, fmt.Errorf("%w: negative shift %d", ErrQuantize, shift)
	}

	scale := float64(int64(1) << shift)
	out := make([]int32, len(coeffs))

	var carry float64

	for i, c := range coeffs {
		carry += c * scale
		q := min(max(int64(math.RoundToEven(carry)), qmin), qmax)
		carry -= float64(q)
		out[i] = int32(q)
	}

	return QLP{Coeffs: out, Precision: precision, Shift: shift}, nil
}
