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

//nolint:gosec // Factors are bounded to 12 bits and shifts to 4 bits.
package correct

import (
	"fmt"
	"math"
)

const (
	// GainFactorBits is the serialized width of one channel factor.
	GainFactorBits = 12

	// GainShiftBits is the serialized width of the shared fixed-point shift.
	GainShiftBits = 4

	maxGainFactor = 1<<GainFactorBits - 1
	maxGainShift  = 1<<GainShiftBits - 1
)

// GainParams scales channel c by Factors[c] / 2^Shift, a fixed-point gain >= 1.
type GainParams struct {
	Shift   uint8
	Factors []uint16
}

func stddev(ch []int32) float64 {
	if len(ch) == 0 {
		return 0
	}

	var sum float64
	for _, v := range ch {
		sum += float64(v)
	}

	mean := sum / float64(len(ch))

	var acc float64

	for _, v := range ch {
		d := float64(v) - mean
		acc += d * d
	}

	return math.Sqrt(acc / float64(len(ch)))
}

// roundDiv divides with rounding half away from zero. den must be positive.
func roundDiv(num, den int64) int64 {
	if num >= 0 {
		return (num + den/2) / den
	}

	return -((-num + den/2) / den)
}

// Gain equalizes channel loudness toward the loudest channel. Each factor is
// reduced until the scaled channel fits bitDepth bits, down to unity. It
// reports false when every factor is unity.
func Gain(channels [][]int32, bitDepth int) (GainParams, bool) {
	stds := make([]float64, len(channels))
	var stdMax float64

	for idx, ch := range channels {
		stds[idx] = stddev(ch)
		stdMax = max(stdMax, stds[idx])
	}

	ratios := make([]float64, len(channels))
	var ratioMax float64

	for idx, std := range stds {
		ratios[idx] = 1
		if std > 0 {
			ratios[idx] = stdMax / std
		}

		ratioMax = max(ratioMax, ratios[idx])
	}

	// Largest shared shift that keeps the biggest factor within 12 bits.
	var shift uint8

	for s := maxGainShift; s >= 0; s-- {
		if math.Round(ratioMax*float64(int(1)<<s)) <= maxGainFactor {
			shift = uint8(s)

			break
		}
	}

	unity := int64(1) << shift
	rangeLo, rangeHi := sampleRange(bitDepth)
	params := GainParams{Shift: shift, Factors: make([]uint16, len(channels))}
	present := false

	for idx, ch := range channels {
		factor := min(max(int64(math.Round(ratios[idx]*float64(unity))), unity), maxGainFactor)

		if len(ch) > 0 {
			chLo, chHi := extremes(ch)
			for factor > unity &&
				(roundDiv(chHi*factor, unity) > rangeHi || roundDiv(chLo*factor, unity) < rangeLo) {
				factor--
			}
		}

		params.Factors[idx] = uint16(factor)
		present = present || factor != unity
	}

	return params, present
}

// ApplyGain scales channels in place.
func ApplyGain(channels [][]int32, params GainParams) error {
	if len(params.Factors) != len(channels) {
		return fmt.Errorf("%w: %d factors for %d channels", ErrChannelMismatch, len(params.Factors), len(channels))
	}

	unity := int64(1) << params.Shift

	for idx, ch := range channels {
		factor := int64(params.Factors[idx])
		for i, v := range ch {
			ch[i] = int32(roundDiv(int64(v)*factor, unity))
		}
	}

	return nil
}

// RevertGain undoes ApplyGain in place. Because every factor is at least
// unity, rounding the inverse lands back on the original sample.
func RevertGain(channels [][]int32, params GainParams) error {
	if len(params.Factors) != len(channels) {
		return fmt.Errorf("%w: %d factors for %d channels", ErrChannelMismatch, len(params.Factors), len(channels))
	}

	unity := int64(1) << params.Shift

	for idx, ch := range channels {
		factor := int64(params.Factors[idx])
		if factor == 0 {
			continue
		}

		for i, v := range ch {
			ch[i] = int32(roundDiv(int64(v)*unity, factor))
		}
	}

	return nil
}
