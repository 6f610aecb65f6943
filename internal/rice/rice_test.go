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

package rice_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycophonic/saprobe-straw/internal/bitstream"
	"github.com/mycophonic/saprobe-straw/internal/rice"
)

func TestZigzag(t *testing.T) {
	t.Parallel()

	cases := map[int32]uint32{
		0:             0,
		-1:            1,
		1:             2,
		-2:            3,
		2:             4,
		math.MaxInt32: math.MaxUint32 - 1,
		math.MinInt32: math.MaxUint32,
	}

	for in, want := range cases {
		assert.Equal(t, want, rice.Zigzag(in), "zigzag(%d)", in)
		assert.Equal(t, in, rice.Unzigzag(want), "unzigzag(%d)", want)
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint8(0), rice.Estimate(nil))
	assert.Equal(t, uint8(0), rice.Estimate([]int32{0, 0, 0}))
	assert.Equal(t, uint8(0), rice.Estimate([]int32{-1, 1, 0}))  // mean 1
	assert.Equal(t, uint8(3), rice.Estimate([]int32{4, 4, -4}))  // zigzag 8, 8, 7
	assert.Equal(t, uint8(2), rice.Estimate([]int32{-2, -2, 2})) // zigzag 3, 3, 4
	assert.Equal(t, uint8(rice.MaxParam), rice.Estimate([]int32{math.MaxInt32, math.MinInt32}))
}

func TestStaticGoldenBits(t *testing.T) {
	t.Parallel()

	w := bitstream.NewWriter(4)
	coder := rice.Coder{}

	used, err := coder.Encode(w, []int32{0, 3, -2}, 2, rice.Unbounded)
	require.NoError(t, err)
	require.Equal(t, 10, used)

	w.Align()
	assert.Equal(t, []byte{0x14, 0xC0}, w.Bytes())

	var bb bitstream.BitBuffer
	bb.Reset(w.Bytes())

	out := make([]int32, 3)
	consumed, err := coder.Decode(&bb, out, 2)
	require.NoError(t, err)
	assert.Equal(t, 10, consumed)
	assert.Equal(t, []int32{0, 3, -2}, out)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))

	for _, responsiveness := range []int{0, 1, 7, 20} {
		coder := rice.Coder{Responsiveness: responsiveness}

		values := make([]int32, 3000)
		for i := range values {
			// Residual-like: mostly small, with bursts.
			scale := int32(16)
			if i/500%2 == 1 {
				scale = 4096
			}

			values[i] = rng.Int32N(2*scale) - scale
		}

		values[100] = -1 << 20
		values[101] = 1 << 20

		k := coder.InitialParam(values)

		w := bitstream.NewWriter(4096)
		w.Write(0b101, 3) // misalign on purpose

		used, err := coder.Encode(w, values, k, rice.Unbounded)
		require.NoError(t, err)
		require.Equal(t, 3+used, w.Len())

		cost, err := coder.Cost(values, k, rice.Unbounded)
		require.NoError(t, err)
		require.Equal(t, used, cost)

		_, err = coder.Cost(values, k, used-1)
		require.ErrorIs(t, err, rice.ErrOverflow)

		w.Align()

		var bb bitstream.BitBuffer
		bb.Reset(w.Bytes())
		bb.Advance(3)

		out := make([]int32, len(values))
		consumed, err := coder.Decode(&bb, out, k)
		require.NoError(t, err, "responsiveness %d", responsiveness)
		assert.Equal(t, used, consumed)
		assert.Equal(t, values, out, "responsiveness %d", responsiveness)
	}
}

func TestEncodeOverflowRollsBack(t *testing.T) {
	t.Parallel()

	w := bitstream.NewWriter(16)
	w.Write(0b11, 2)

	values := []int32{1000, -1000, 1000}

	_, err := rice.Coder{}.Encode(w, values, 0, 64)
	require.ErrorIs(t, err, rice.ErrOverflow)
	assert.Equal(t, 2, w.Len())
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()

	w := bitstream.NewWriter(16)
	_, err := rice.Coder{}.Encode(w, []int32{5, 90, -33, 7}, 1, rice.Unbounded)
	require.NoError(t, err)
	w.Align()

	data := w.Bytes()

	var bb bitstream.BitBuffer
	bb.Reset(data[:len(data)/2])

	_, err = rice.Coder{}.Decode(&bb, make([]int32, 4), 1)
	require.ErrorIs(t, err, rice.ErrBitstreamOverrun)
}

func TestDecodeRejectsOversizedPrefix(t *testing.T) {
	t.Parallel()

	// A prefix this long cannot form a 32-bit code word with k=15.
	w := bitstream.NewWriter(16)
	w.WriteOnes(math.MaxUint32>>15 + 1)
	w.Write(0, 1)
	w.Write(0, 15)
	w.Align()

	var bb bitstream.BitBuffer
	bb.Reset(w.Bytes())

	_, err := rice.Coder{}.Decode(&bb, make([]int32, 1), 15)
	require.ErrorIs(t, err, rice.ErrInvalidCode)
}

func TestInvalidParam(t *testing.T) {
	t.Parallel()

	_, err := rice.Coder{}.Encode(bitstream.NewWriter(1), []int32{1}, rice.MaxParam+1, rice.Unbounded)
	require.ErrorIs(t, err, rice.ErrInvalidParam)
}
