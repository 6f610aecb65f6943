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

package straw

import (
	"context"
	"fmt"
	"io"
)

// Decode reads a straw stream and returns its audio as interleaved
// little-endian signed PCM bytes.
func Decode(reader io.Reader) ([]byte, PCMFormat, error) {
	buf, _, err := NewDecoder().Decode(context.Background(), reader)
	if err != nil {
		return nil, PCMFormat{}, fmt.Errorf("decoding straw: %w", err)
	}

	return buf.PCM(), buf.Format, nil
}

// Encode compresses interleaved little-endian signed PCM with the default
// settings and writes the stream to writer.
func Encode(writer io.Writer, pcm []byte, pcmFormat PCMFormat) error {
	buf, err := NewBufferFromPCM(pcm, pcmFormat)
	if err != nil {
		return err
	}

	enc, err := NewEncoder(DefaultEncoderConfig())
	if err != nil {
		return err
	}

	if _, err := enc.Encode(context.Background(), buf, writer); err != nil {
		return fmt.Errorf("encoding straw: %w", err)
	}

	return nil
}
