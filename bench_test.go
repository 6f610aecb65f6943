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
	"io"
	"testing"

	"github.com/mycophonic/agar/pkg/agar"

	"github.com/mycophonic/saprobe-straw"
)

//nolint:gochecknoglobals
var benchFormats = []straw.PCMFormat{
	{SampleRate: 44100, BitDepth: straw.Depth16, Channels: 2},
	{SampleRate: 96000, BitDepth: straw.Depth24, Channels: 2},
}

func benchBuffer(b *testing.B, pcmFormat straw.PCMFormat) ([]byte, *straw.Buffer) {
	b.Helper()

	pcm := agar.GenerateWhiteNoise(pcmFormat.SampleRate, int(pcmFormat.BitDepth), int(pcmFormat.Channels), 2)

	buf, err := straw.NewBufferFromPCM(pcm, pcmFormat)
	if err != nil {
		b.Fatal(err)
	}

	return pcm, buf
}

func BenchmarkEncode(b *testing.B) {
	for _, pcmFormat := range benchFormats {
		b.Run(fmt.Sprintf("%dHz/%dbit", pcmFormat.SampleRate, pcmFormat.BitDepth), func(b *testing.B) {
			pcm, buf := benchBuffer(b, pcmFormat)

			encoder, err := straw.NewEncoder(straw.DefaultEncoderConfig())
			if err != nil {
				b.Fatal(err)
			}

			b.SetBytes(int64(len(pcm)))
			b.ResetTimer()

			for range b.N {
				if _, err := encoder.Encode(context.Background(), buf, io.Discard); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecode(b *testing.B) {
	for _, pcmFormat := range benchFormats {
		b.Run(fmt.Sprintf("%dHz/%dbit", pcmFormat.SampleRate, pcmFormat.BitDepth), func(b *testing.B) {
			pcm, _ := benchBuffer(b, pcmFormat)

			var stream bytes.Buffer
			if err := straw.Encode(&stream, pcm, pcmFormat); err != nil {
				b.Fatal(err)
			}

			decoder := straw.NewDecoder()

			b.SetBytes(int64(len(pcm)))
			b.ResetTimer()

			for range b.N {
				if _, _, err := decoder.Decode(context.Background(), bytes.NewReader(stream.Bytes())); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkInterleave(b *testing.B) {
	for _, pcmFormat := range benchFormats {
		b.Run(fmt.Sprintf("%dHz/%dbit", pcmFormat.SampleRate, pcmFormat.BitDepth), func(b *testing.B) {
			pcm, buf := benchBuffer(b, pcmFormat)

			b.SetBytes(int64(len(pcm)))
			b.ResetTimer()

			for range b.N {
				_ = buf.PCM()
			}
		})
	}
}
