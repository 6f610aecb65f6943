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

//nolint:gosec // Sizes are checked against the 32-bit RIFF limit.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Header is the canonical 44-byte PCM WAVE header.
type Header struct {
	// RIFF header
	RiffID   [4]byte // "RIFF"
	FileSize uint32  // 4 + (8 + FmtSize) + (8 + DataSize + pad)
	WaveID   [4]byte // "WAVE"

	// fmt sub-chunk
	FmtID         [4]byte // "fmt "
	FmtSize       uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * BlockAlign
	BlockAlign    uint16 // NumChannels * bytes per sample
	BitsPerSample uint16

	// data sub-chunk
	DataID   [4]byte // "data"
	DataSize uint32
}

// Write writes pcm as a WAVE stream.
func Write(writer io.Writer, pcm []byte, format Format) error {
	blockAlign := format.BlockAlign()

	switch {
	case format.Channels < 1 || format.Channels > math.MaxUint16 || blockAlign > math.MaxUint16:
		return fmt.Errorf("%w: %d channels", ErrUnsupported, format.Channels)
	case format.BitsPerSample < 1 || format.BitsPerSample > 32:
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupported, format.BitsPerSample)
	case format.SampleRate < 1 || int64(format.SampleRate)*int64(blockAlign) > math.MaxUint32:
		return fmt.Errorf("%w: sample rate %d", ErrUnsupported, format.SampleRate)
	case len(pcm)%blockAlign != 0:
		return fmt.Errorf("%w: %d bytes is not a whole number of sample frames", ErrInvalidChunkSize, len(pcm))
	case int64(len(pcm))+riffHeaderSize+chunkHeaderSize*2+minFmtSize > math.MaxUint32:
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(pcm))
	}

	header := Header{
		RiffID:        fourCCRIFF,
		FileSize:      uint32(4 + chunkHeaderSize + minFmtSize + chunkHeaderSize + len(pcm) + len(pcm)%2),
		WaveID:        fourCCWAVE,
		FmtID:         fourCCFmt,
		FmtSize:       minFmtSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.SampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(format.BitsPerSample),
		DataID:        fourCCData,
		DataSize:      uint32(len(pcm)),
	}

	if err := binary.Write(writer, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("writing WAVE header: %w", err)
	}

	if _, err := writer.Write(pcm); err != nil {
		return fmt.Errorf("writing WAVE data: %w", err)
	}

	if len(pcm)%2 == 1 {
		if _, err := writer.Write([]byte{0}); err != nil {
			return fmt.Errorf("writing WAVE pad byte: %w", err)
		}
	}

	return nil
}
