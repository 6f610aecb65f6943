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

package correct

import (
	"fmt"
	"math"
)

// BiasBits is the serialized width of one channel offset.
const BiasBits = 8

// sampleRange returns the inclusive signed range of a bitDepth-bit sample.
func sampleRange(bitDepth int) (lo, hi int64) {
	hi = int64(1)<<(bitDepth-1) - 1

	return -hi - 1, hi
}

// extremes returns the minimum and maximum of a non-empty channel.
func extremes(ch []int32) (lo, hi int64) {
	lo, hi = math.MaxInt64, math.MinInt64
	for _, v := range ch {
		lo = min(lo, int64(v))
		hi = max(hi, int64(v))
	}

	return lo, hi
}

// Bias returns the per-channel DC offset: the truncated mean, limited so
// that every corrected sample still fits bitDepth bits and the offset fits
// a signed byte. It reports false when every offset is zero.
func Bias(channels [][]int32, bitDepth int) ([]int8, bool) {
	bias := make([]int8, len(channels))
	present := false
	rangeLo, rangeHi := sampleRange(bitDepth)

	for idx, ch := range channels {
		if len(ch) == 0 {
			continue
		}

		var sum int64
		for _, v := range ch {
			sum += int64(v)
		}

		mean := sum / int64(len(ch)) // truncates toward zero

		chLo, chHi := extremes(ch)
		lo := max(chHi-rangeHi, math.MinInt8)
		hi := min(chLo-rangeLo, math.MaxInt8)

		bias[idx] = int8(min(max(mean, lo), hi))
		present = present || bias[idx] != 0
	}

	return bias, present
}

// ApplyBias subtracts each channel's offset in place.
func ApplyBias(channels [][]int32, bias []int8) error {
	if len(bias) != len(channels) {
		return fmt.Errorf("%w: %d offsets for %d channels", ErrChannelMismatch, len(bias), len(channels))
	}

	for idx, ch := range channels {
		offset := int32(bias[idx])
		for i := range ch {
			ch[i] -= offset
		}
	}

	return nil
}

// RevertBias adds each channel's offset back in place.
func RevertBias(channels [][]int32, bias []int8) error {
	if len(bias) != len(channels) {
		return fmt.Errorf("%w: %d offsets for %d channels", ErrChannelMismatch, len(bias), len(channels))
	}

	for idx, ch := range channels {
		offset := int32(bias[idx])
		for i := range ch {
			ch[i] += offset
		}
	}

	return nil
}
