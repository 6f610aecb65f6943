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

package correct_test

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycophonic/saprobe-straw/internal/correct"
)

func noise(n int, amplitude, offset int32, seed uint64) []int32 {
	rng := rand.New(rand.NewPCG(seed, 3))
	out := make([]int32, n)

	for i := range out {
		out[i] = rng.Int32N(2*amplitude+1) - amplitude + offset
	}

	return out
}

func cloneChannels(channels [][]int32) [][]int32 {
	out := make([][]int32, len(channels))
	for i, ch := range channels {
		out[i] = slices.Clone(ch)
	}

	return out
}

func requireFits(t *testing.T, channels [][]int32, bitDepth int) {
	t.Helper()

	hi := int32(1)<<(bitDepth-1) - 1
	lo := -hi - 1

	for c, ch := range channels {
		for i, v := range ch {
			if v < lo || v > hi {
				t.Fatalf("channel %d sample %d: %d outside %d-bit range", c, i, v, bitDepth)
			}
		}
	}
}

func TestBiasRoundTrip(t *testing.T) {
	t.Parallel()

	channels := [][]int32{
		noise(1000, 500, 40, 1),
		noise(1000, 500, -90, 2),
		noise(1000, 500, 1000, 3), // mean beyond a signed byte
		make([]int32, 1000),
	}
	orig := cloneChannels(channels)

	bias, present := correct.Bias(channels, 16)
	require.True(t, present)
	assert.InDelta(t, 40, bias[0], 30)
	assert.InDelta(t, -90, bias[1], 30)
	assert.Equal(t, int8(127), bias[2])
	assert.Equal(t, int8(0), bias[3])

	require.NoError(t, correct.ApplyBias(channels, bias))
	requireFits(t, channels, 16)
	require.NoError(t, correct.RevertBias(channels, bias))
	assert.Equal(t, orig, channels)
}

func TestBiasRespectsRange(t *testing.T) {
	t.Parallel()

	// Mean is positive but the minimum already sits at the floor, so any
	// positive offset would push it out of range.
	ch := []int32{math.MinInt16, 32000, 32000, 32000}

	bias, present := correct.Bias([][]int32{ch}, 16)
	assert.False(t, present)
	assert.Equal(t, int8(0), bias[0])

	err := correct.ApplyBias([][]int32{ch}, nil)
	require.ErrorIs(t, err, correct.ErrChannelMismatch)
}

func TestGainRoundTrip(t *testing.T) {
	t.Parallel()

	channels := [][]int32{
		noise(4000, 16000, 0, 4),
		noise(4000, 4000, 0, 5),
		noise(4000, 1000, 0, 6),
		make([]int32, 4000),
	}
	orig := cloneChannels(channels)

	params, present := correct.Gain(channels, 16)
	require.True(t, present)

	unity := uint16(1) << params.Shift
	assert.Equal(t, unity, params.Factors[3], "silent channel keeps unity")

	for _, f := range params.Factors {
		assert.GreaterOrEqual(t, f, unity)
		assert.LessOrEqual(t, f, uint16(4095))
	}

	require.NoError(t, correct.ApplyGain(channels, params))
	requireFits(t, channels, 16)
	require.NoError(t, correct.RevertGain(channels, params))
	assert.Equal(t, orig, channels)
}

func TestGainUnity(t *testing.T) {
	t.Parallel()

	channels := [][]int32{noise(100, 300, 0, 7)}

	params, present := correct.Gain(channels, 16)
	assert.False(t, present)
	assert.Equal(t, uint8(11), params.Shift)
	assert.Equal(t, []uint16{2048}, params.Factors)
}

func TestShiftRecoversLag(t *testing.T) {
	t.Parallel()

	base := noise(6000, 8000, 0, 8)

	// ch1 lags the base by 3 samples, ch2 leads by 2.
	ch0 := slices.Clone(base[10:5010])
	ch1 := slices.Clone(base[7:5007])
	ch2 := slices.Clone(base[12:5012])

	channels := [][]int32{ch0, ch1, ch2}
	orig := cloneChannels(channels)

	params, present := correct.Shift(channels, correct.MaxLag, correct.DefaultAnalysis)
	require.True(t, present)
	assert.Equal(t, 5, params.Spread())

	aligned, err := correct.ApplyShift(channels, params)
	require.NoError(t, err)

	for _, ch := range aligned {
		require.Len(t, ch, 5000-5)
		assert.Equal(t, aligned[0], ch)
	}

	restored, err := correct.RevertShift(aligned, params)
	require.NoError(t, err)
	assert.Equal(t, orig, restored)
}

func TestShiftNotNeeded(t *testing.T) {
	t.Parallel()

	base := noise(2000, 8000, 0, 9)

	_, present := correct.Shift([][]int32{base, slices.Clone(base)}, correct.MaxLag, 1024)
	assert.False(t, present)

	_, present = correct.Shift([][]int32{base}, correct.MaxLag, 1024)
	assert.False(t, present)

	_, present = correct.Shift([][]int32{base[:10], base[1:11]}, correct.MaxLag, 1024)
	assert.False(t, present)
}

func TestMidSideInvertible(t *testing.T) {
	t.Parallel()

	a := []int32{5, -1, 0, 7, -8, math.MaxInt32 / 2, -3}
	b := []int32{2, 2, 0, -8, 7, -math.MaxInt32 / 2, -3}

	side, mid, err := correct.MidSide(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, -3, 0, 15, -15, math.MaxInt32 - 1, 0}, side)
	assert.Equal(t, []int32{3, 0, 0, -1, -1, 0, -3}, mid)

	gotA := make([]int32, len(a))
	gotB := make([]int32, len(b))
	correct.LeftRight(side, mid, gotA, gotB)
	assert.Equal(t, a, gotA)
	assert.Equal(t, b, gotB)
}

func TestMidSideRange(t *testing.T) {
	t.Parallel()

	_, _, err := correct.MidSide([]int32{math.MaxInt32}, []int32{-1})
	require.ErrorIs(t, err, correct.ErrSideRange)

	_, _, err = correct.MidSide([]int32{1}, nil)
	require.ErrorIs(t, err, correct.ErrLengthMismatch)
}
