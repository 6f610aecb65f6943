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

//nolint:gosec // Offsets are bounded by 2*MaxLag.
package correct

import (
	"fmt"
	"math"
)

const (
	// MaxLag bounds the per-channel lag search; offsets fit 4 bits.
	MaxLag = 7

	// OffsetBits is the serialized width of one channel offset.
	OffsetBits = 4

	// DefaultAnalysis is the number of leading samples correlated.
	DefaultAnalysis = 8192
)

// ShiftParams aligns channels by dropping Offsets[c] leading samples from
// channel c. The dropped lead and the unaligned tail are kept verbatim.
type ShiftParams struct {
	Leading int
	Offsets []uint8
	Lead    [][]int32
	Trail   [][]int32
}

// Spread returns the largest offset, i.e. how much shorter aligned channels are.
func (p ShiftParams) Spread() int {
	spread := 0
	for _, o := range p.Offsets {
		spread = max(spread, int(o))
	}

	return spread
}

// leadingChannel picks the channel whose variance is closest to the mean variance.
func leadingChannel(channels [][]int32) int {
	vars := make([]float64, len(channels))

	var mean float64

	for idx, ch := range channels {
		std := stddev(ch)
		vars[idx] = std * std
		mean += vars[idx]
	}

	mean /= float64(len(channels))

	best := 0
	bestDist := math.Inf(1)

	for idx, v := range vars {
		if d := math.Abs(v - mean); d < bestDist {
			best, bestDist = idx, d
		}
	}

	return best
}

// correlate returns the one-sided cross-correlation of ref and ch at lag over
// the first span samples. A positive lag pairs ref[n] with ch[n+lag].
func correlate(ref, ch []int32, lag, span int) int64 {
	var sum int64

	if lag >= 0 {
		for n := range span - lag {
			sum += int64(ref[n]) * int64(ch[n+lag])
		}

		return sum
	}

	for n := range span + lag {
		sum += int64(ch[n]) * int64(ref[n-lag])
	}

	return sum
}

// bestLag searches lags in [-maxLag, maxLag], preferring the smallest |lag|
// among equal correlations.
func bestLag(ref, ch []int32, maxLag, span int) int {
	best := 0
	bestCorr := correlate(ref, ch, 0, span)

	for mag := 1; mag <= maxLag; mag++ {
		for _, lag := range [2]int{mag, -mag} {
			if c := correlate(ref, ch, lag, span); c > bestCorr {
				best, bestCorr = lag, c
			}
		}
	}

	return best
}

// Shift estimates per-channel lags against the leading channel over the first
// analysis samples. It reports false when no channel needs shifting or the
// input is too short to search.
func Shift(channels [][]int32, maxLag, analysis int) (ShiftParams, bool) {
	maxLag = min(max(maxLag, 0), MaxLag)

	if len(channels) < 2 || maxLag == 0 {
		return ShiftParams{}, false
	}

	length := len(channels[0])
	for _, ch := range channels {
		if len(ch) != length {
			return ShiftParams{}, false
		}
	}

	span := min(max(analysis, 0), length)
	if span <= 2*maxLag {
		return ShiftParams{}, false
	}

	leading := leadingChannel(channels)
	lags := make([]int, len(channels))
	minLag := 0

	for idx, ch := range channels {
		if idx != leading {
			lags[idx] = bestLag(channels[leading], ch, maxLag, span)
		}

		minLag = min(minLag, lags[idx])
	}

	params := ShiftParams{
		Leading: leading,
		Offsets: make([]uint8, len(channels)),
	}

	for idx, lag := range lags {
		params.Offsets[idx] = uint8(lag - minLag)
	}

	spread := params.Spread()
	if spread == 0 || spread >= length {
		return ShiftParams{}, false
	}

	params.Lead = make([][]int32, len(channels))
	params.Trail = make([][]int32, len(channels))

	aligned := length - spread

	for idx, ch := range channels {
		off := int(params.Offsets[idx])
		params.Lead[idx] = append([]int32(nil), ch[:off]...)
		params.Trail[idx] = append([]int32(nil), ch[off+aligned:]...)
	}

	return params, true
}

// ApplyShift returns the aligned channels, sharing storage with the input.
func ApplyShift(channels [][]int32, params ShiftParams) ([][]int32, error) {
	if len(params.Offsets) != len(channels) {
		return nil, fmt.Errorf("%w: %d offsets for %d channels", ErrChannelMismatch, len(params.Offsets), len(channels))
	}

	spread := params.Spread()
	out := make([][]int32, len(channels))

	for idx, ch := range channels {
		aligned := len(ch) - spread
		if aligned < 0 || len(ch) != len(channels[0]) {
			return nil, fmt.Errorf("%w: channel %d", ErrLengthMismatch, idx)
		}

		off := int(params.Offsets[idx])
		out[idx] = ch[off : off+aligned]
	}

	return out, nil
}

// RevertShift reassembles full-length channels from aligned ones.
func RevertShift(aligned [][]int32, params ShiftParams) ([][]int32, error) {
	if len(params.Offsets) != len(aligned) || len(params.Lead) != len(aligned) || len(params.Trail) != len(aligned) {
		return nil, fmt.Errorf("%w: %d offsets for %d channels", ErrChannelMismatch, len(params.Offsets), len(aligned))
	}

	spread := params.Spread()
	out := make([][]int32, len(aligned))

	for idx, ch := range aligned {
		lead, trail := params.Lead[idx], params.Trail[idx]
		if len(lead) != int(params.Offsets[idx]) || len(lead)+len(trail) != spread {
			return nil, fmt.Errorf("%w: channel %d", ErrLengthMismatch, idx)
		}

		full := make([]int32, 0, len(ch)+spread)
		full = append(full, lead...)
		full = append(full, ch...)
		full = append(full, trail...)
		out[idx] = full
	}

	return out, nil
}
