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

//nolint:gosec // Residuals are range checked before narrowing.
package lpc

import (
	"fmt"
	"math"
)

// Forward prediction and its exact integer inverse.
// Both sides use int64 accumulation and an arithmetic right shift, so the
// prediction term is floor(sum / 2^shift) on either side.

// Residual returns frame[i] - (sum_j coeffs[j]*frame[i-j-1] >> shift) for
// every i in [order, len(frame)).
func Residual(frame []int32, qlp QLP) ([]int32, error) {
	order := qlp.Order()
	if order < 1 || order > MaxOrder {
		return nil, fmt.Errorf("%w: %d", ErrOrder, order)
	}

	if len(frame) <= order {
		return nil, fmt.Errorf("%w: order %d for %d samples", ErrOrder, order, len(frame))
	}

	coefs := qlp.Coeffs[:order:order]
	shift := uint(qlp.Shift)
	res := make([]int32, len(frame)-order)

	for i := order; i < len(frame); i++ {
		var sum int64
		for j, c := range coefs {
			sum += int64(c) * int64(frame[i-j-1])
		}

		val := int64(frame[i]) - sum>>shift
		if val > math.MaxInt32 || val < math.MinInt32 {
			return nil, fmt.Errorf("%w: sample %d", ErrResidualRange, i)
		}

		res[i-order] = int32(val)
	}

	return res, nil
}

// Variance returns the population variance of values.
func Variance(values []int32) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += float64(v)
	}

	mean := sum / float64(len(values))

	var acc float64

	for _, v := range values {
		d := float64(v) - mean
		acc += d * d
	}

	return acc / float64(len(values))
}

// Predict computes the residual and keeps it only if its variance is strictly
// lower than the frame's. Any other outcome is an error the caller answers
// with a verbatim subframe.
func Predict(frame []int32, qlp QLP) ([]int32, error) {
	res, err := Residual(frame, qlp)
	if err != nil {
		return nil, err
	}

	if Variance(res) >= Variance(frame) {
		return nil, ErrNoGain
	}

	return res, nil
}

// Restore rebuilds a frame from its warm-up samples and residual. out must
// hold len(warmup)+len(residual) samples.
func Restore(warmup, residual []int32, qlp QLP, out []int32) {
	order := qlp.Order()
	num := order + len(residual)

	// BCE: reslice to exact lengths.
	out = out[:num:num]
	residual = residual[: num-order : num-order]
	coefs := qlp.Coeffs[:order:order]
	shift := uint(qlp.Shift)

	copy(out, warmup[:order])

	for i := order; i < num; i++ {
		var sum int64
		for j, c := range coefs {
			sum += int64(c) * int64(out[i-j-1])
		}

		out[i] = residual[i-order] + int32(sum>>shift)
	}
}
