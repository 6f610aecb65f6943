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

package straw_test

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mycophonic/agar/pkg/agar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycophonic/saprobe-straw"
)

// tonal returns channels of harmonically rich tones with a little noise, the
// kind of material linear prediction handles well. Channel c is the base
// signal delayed by delays[c] samples, scaled by gains[c] and offset by dc[c].
func tonal(samples int, bitDepth straw.BitDepth, delays []int, gains []float64, dc []int32) *straw.Buffer {
	rng := rand.New(rand.NewPCG(7, uint64(samples)))
	peak := float64(int(1)<<(bitDepth-1)) * 0.25

	base := make([]float64, samples+16)
	for i := range base {
		t := float64(i) / 44100
		base[i] = 0.6*math.Sin(2*math.Pi*220*t) + 0.3*math.Sin(2*math.Pi*661*t+0.4) + 0.1*math.Sin(2*math.Pi*1543*t)

		// Loud and quiet stretches so energy segmentation has edges to find.
		if i/6000%2 == 1 {
			base[i] *= 0.05
		}
	}

	buf := straw.NewBuffer(straw.PCMFormat{SampleRate: 44100, BitDepth: bitDepth, Channels: uint(len(delays))}, samples)

	for c, ch := range buf.Channels {
		for i := range ch {
			val := base[i+16-delays[c]]*peak*gains[c] + rng.NormFloat64()*4
			ch[i] = int32(math.Round(val)) + dc[c]
		}
	}

	return buf
}

func roundTrip(t *testing.T, enc *straw.Encoder, buf *straw.Buffer) (*straw.Buffer, straw.Stats, []byte) {
	t.Helper()

	var stream bytes.Buffer

	stats, err := enc.Encode(context.Background(), buf, &stream)
	require.NoError(t, err)
	require.Equal(t, int64(stream.Len()), stats.StreamBytes)

	encoded := bytes.Clone(stream.Bytes())

	decoded, _, err := straw.NewDecoder().Decode(context.Background(), &stream)
	require.NoError(t, err)
	require.Equal(t, buf.Format, decoded.Format)
	require.Equal(t, buf.Channels, decoded.Channels)

	return decoded, stats, encoded
}

func TestRoundTripWhiteNoise(t *testing.T) {
	t.Parallel()

	for _, bitDepth := range []int{16, 24} {
		for _, channels := range []int{1, 2, 3} {
			label := fmt.Sprintf("%dbit_%dch", bitDepth, channels)

			t.Run(label, func(t *testing.T) {
				t.Parallel()

				srcPCM := agar.GenerateWhiteNoise(44100, bitDepth, channels, 1)
				pcmFormat := straw.PCMFormat{SampleRate: 44100, BitDepth: straw.BitDepth(bitDepth), Channels: uint(channels)}

				var stream bytes.Buffer
				require.NoError(t, straw.Encode(&stream, srcPCM, pcmFormat))

				pcm, gotFormat, err := straw.Decode(&stream)
				require.NoError(t, err)
				assert.Equal(t, pcmFormat, gotFormat)

				agar.CompareLosslessSamples(t, label, srcPCM, pcm, bitDepth, channels)
			})
		}
	}
}

func TestRoundTripConfigurations(t *testing.T) {
	t.Parallel()

	fixed := straw.DefaultEncoderConfig()
	fixed.DynamicBlocks = false
	fixed.BlockSize = 3000

	common := straw.DefaultEncoderConfig()
	common.CommonLPC = true

	static := straw.DefaultEncoderConfig()
	static.Responsiveness = 0

	corrected := straw.DefaultEncoderConfig()
	corrected.Corrections = straw.CorrectAll

	everything := straw.DefaultEncoderConfig()
	everything.CommonLPC = true
	everything.CheckStability = true
	everything.Corrections = straw.CorrectAll
	everything.Responsiveness = 7
	everything.Order = 32
	everything.Precision = 15

	plain := straw.DefaultEncoderConfig()
	plain.MidSide = false
	plain.Order = 1
	plain.Precision = 4

	configs := map[string]straw.EncoderConfig{
		"default":    straw.DefaultEncoderConfig(),
		"fixed":      fixed,
		"common":     common,
		"static":     static,
		"corrected":  corrected,
		"everything": everything,
		"plain":      plain,
	}

	for name, config := range configs {
		for _, bitDepth := range []straw.BitDepth{straw.Depth16, straw.Depth24} {
			t.Run(fmt.Sprintf("%s_%d", name, bitDepth), func(t *testing.T) {
				t.Parallel()

				buf := tonal(40000, bitDepth,
					[]int{0, 3, 1, 5},
					[]float64{1, 0.5, 0.9, 0.2},
					[]int32{0, 40, -17, 3})

				enc, err := straw.NewEncoder(config)
				require.NoError(t, err)

				_, stats, _ := roundTrip(t, enc, buf)

				assert.Less(t, stats.Ratio(), 1.0)
				assert.Positive(t, stats.Subframes["lpc"]+stats.Subframes["lpc_common"])
			})
		}
	}
}

func TestCommonLPCSubframes(t *testing.T) {
	t.Parallel()

	config := straw.DefaultEncoderConfig()
	config.CommonLPC = true

	enc, err := straw.NewEncoder(config)
	require.NoError(t, err)

	buf := tonal(20000, straw.Depth16, []int{0, 0}, []float64{1, 0.8}, []int32{0, 0})

	_, stats, _ := roundTrip(t, enc, buf)

	assert.Positive(t, stats.Subframes["lpc_common"])
	assert.Zero(t, stats.Subframes["lpc"])
}

func TestSilenceIsConstant(t *testing.T) {
	t.Parallel()

	buf := straw.NewBuffer(straw.PCMFormat{SampleRate: 8000, BitDepth: straw.Depth16, Channels: 2}, 10000)
	for i := range buf.Channels[1] {
		buf.Channels[1][i] = -123
	}

	enc, err := straw.NewEncoder(straw.DefaultEncoderConfig())
	require.NoError(t, err)

	_, stats, encoded := roundTrip(t, enc, buf)

	assert.Equal(t, 2*stats.Frames, stats.Subframes["constant"])
	assert.Less(t, len(encoded), 200)
}

func TestMidSidePairs(t *testing.T) {
	t.Parallel()

	buf := tonal(30000, straw.Depth16, []int{0, 0}, []float64{1, 1}, []int32{0, 0})

	// Identical channels leave an all-zero side residual.
	copy(buf.Channels[1], buf.Channels[0])

	enc, err := straw.NewEncoder(straw.DefaultEncoderConfig())
	require.NoError(t, err)

	_, stats, withMS := roundTrip(t, enc, buf)
	assert.Positive(t, stats.MidSidePairs)

	config := straw.DefaultEncoderConfig()
	config.MidSide = false

	enc, err = straw.NewEncoder(config)
	require.NoError(t, err)

	_, stats, withoutMS := roundTrip(t, enc, buf)
	assert.Zero(t, stats.MidSidePairs)
	assert.Less(t, len(withMS), len(withoutMS))
}

func TestShortAndEmptyInputs(t *testing.T) {
	t.Parallel()

	enc, err := straw.NewEncoder(straw.DefaultEncoderConfig())
	require.NoError(t, err)

	for _, samples := range []int{0, 1, 2, 5, 33} {
		buf := tonal(samples, straw.Depth16, []int{0, 2}, []float64{1, 1}, []int32{0, 0})

		_, stats, _ := roundTrip(t, enc, buf)
		assert.Equal(t, samples > 0, stats.Frames > 0, "samples %d", samples)
	}
}

func TestWorkersProduceIdenticalStreams(t *testing.T) {
	t.Parallel()

	buf := tonal(50000, straw.Depth16, []int{0, 1, 2}, []float64{1, 0.7, 0.3}, []int32{0, 0, 0})

	var streams [2]bytes.Buffer

	for idx, workers := range []int{1, 8} {
		enc, err := straw.NewEncoder(straw.DefaultEncoderConfig(), straw.WithWorkers(workers))
		require.NoError(t, err)

		_, err = enc.Encode(context.Background(), buf, &streams[idx])
		require.NoError(t, err)
	}

	assert.Equal(t, streams[0].Bytes(), streams[1].Bytes())
}

func TestDecodeCorruption(t *testing.T) {
	t.Parallel()

	buf := tonal(20000, straw.Depth16, []int{0, 0}, []float64{1, 0.5}, []int32{0, 0})

	enc, err := straw.NewEncoder(straw.DefaultEncoderConfig())
	require.NoError(t, err)

	_, _, encoded := roundTrip(t, enc, buf)

	decode := func(data []byte) error {
		_, _, err := straw.NewDecoder().Decode(context.Background(), bytes.NewReader(data))

		return err
	}

	flipped := bytes.Clone(encoded)
	flipped[len(flipped)/2] ^= 0x04
	require.ErrorIs(t, decode(flipped), straw.ErrDecode)

	// The content hash starts at byte 17 of the stream header.
	flipped = bytes.Clone(encoded)
	flipped[17] ^= 0x01
	require.ErrorIs(t, decode(flipped), straw.ErrIntegrity)

	require.ErrorIs(t, decode(encoded[:len(encoded)-1]), straw.ErrDecode)
	require.ErrorIs(t, decode(append(bytes.Clone(encoded), 0)), straw.ErrDecode)
	require.ErrorIs(t, decode([]byte("RIFF....WAVE")), straw.ErrDecode)
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	mutations := map[string]func(*straw.EncoderConfig){
		"order":          func(c *straw.EncoderConfig) { c.Order = 0 },
		"order high":     func(c *straw.EncoderConfig) { c.Order = 33 },
		"precision":      func(c *straw.EncoderConfig) { c.Precision = 1 },
		"responsiveness": func(c *straw.EncoderConfig) { c.Responsiveness = 256 },
		"max lag":        func(c *straw.EncoderConfig) { c.MaxLag = 8 },
		"blocking":       func(c *straw.EncoderConfig) { c.Blocking.MinBlock = c.Blocking.MaxBlock + 1 },
		"block size": func(c *straw.EncoderConfig) {
			c.DynamicBlocks = false
			c.BlockSize = 1<<16 + 1
		},
	}

	for name, mutate := range mutations {
		config := straw.DefaultEncoderConfig()
		mutate(&config)

		_, err := straw.NewEncoder(config)
		require.ErrorIs(t, err, straw.ErrConfig, name)
	}

	_, err := straw.NewEncoder(straw.DefaultEncoderConfig())
	require.NoError(t, err)
}

func TestParseCorrections(t *testing.T) {
	t.Parallel()

	got, err := straw.ParseCorrections("Bias, gain")
	require.NoError(t, err)
	assert.Equal(t, straw.CorrectBias|straw.CorrectGain, got)
	assert.Equal(t, "bias,gain", got.String())

	got, err = straw.ParseCorrections("all")
	require.NoError(t, err)
	assert.Equal(t, straw.CorrectAll, got)

	got, err = straw.ParseCorrections("")
	require.NoError(t, err)
	assert.Equal(t, "none", got.String())

	_, err = straw.ParseCorrections("bias,reverb")
	require.ErrorIs(t, err, straw.ErrConfig)
}

func TestEncodeRejectsBadBuffers(t *testing.T) {
	t.Parallel()

	enc, err := straw.NewEncoder(straw.DefaultEncoderConfig())
	require.NoError(t, err)

	ragged := straw.NewBuffer(straw.PCMFormat{SampleRate: 44100, BitDepth: straw.Depth16, Channels: 2}, 10)
	ragged.Channels[1] = ragged.Channels[1][:5]

	_, err = enc.Encode(context.Background(), ragged, &bytes.Buffer{})
	require.ErrorIs(t, err, straw.ErrConfig)

	loud := straw.NewBuffer(straw.PCMFormat{SampleRate: 44100, BitDepth: straw.Depth16, Channels: 1}, 10)
	loud.Channels[0][3] = 40000

	_, err = enc.Encode(context.Background(), loud, &bytes.Buffer{})
	require.ErrorIs(t, err, straw.ErrConfig)

	_, err = straw.NewBufferFromPCM([]byte{1, 2, 3}, straw.PCMFormat{SampleRate: 44100, BitDepth: straw.Depth16, Channels: 1})
	require.ErrorIs(t, err, straw.ErrConfig)

	_, err = straw.NewBufferFromPCM(nil, straw.PCMFormat{SampleRate: 44100, BitDepth: 8, Channels: 1})
	require.ErrorIs(t, err, straw.ErrConfig)
}

func TestPCMInterleaving(t *testing.T) {
	t.Parallel()

	pcmFormat := straw.PCMFormat{SampleRate: 48000, BitDepth: straw.Depth24, Channels: 2}
	pcm := []byte{
		0x01, 0x00, 0x00, 0xFF, 0xFF, 0xFF, // 1, -1
		0x00, 0x00, 0x80, 0xFF, 0xFF, 0x7F, // -8388608, 8388607
	}

	buf, err := straw.NewBufferFromPCM(pcm, pcmFormat)
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{1, -8388608}, {-1, 8388607}}, buf.Channels)
	assert.Equal(t, pcm, buf.PCM())
}
