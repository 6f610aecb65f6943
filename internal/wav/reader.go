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

//nolint:gosec // Integer conversions are bounded by RIFF chunk sizes.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// BlockAlign returns the size of one sample frame in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * ((f.BitsPerSample + 7) / 8)
}

// chunkInfo holds the position and size of a parsed chunk.
type chunkInfo struct {
	// Offset of the chunk header start in the file.
	offset int64
	// Payload size, excluding the header and the pad byte.
	size int64
	// Four-character chunk type code.
	fourCC [4]byte
}

const (
	chunkHeaderSize = 8
	riffHeaderSize  = 12
	minFmtSize      = 16
	extensibleSize  = 40

	formatPCM        = 0x0001
	formatExtensible = 0xFFFE
)

//nolint:gochecknoglobals
var (
	fourCCRIFF = [4]byte{'R', 'I', 'F', 'F'}
	fourCCWAVE = [4]byte{'W', 'A', 'V', 'E'}
	fourCCFmt  = [4]byte{'f', 'm', 't', ' '}
	fourCCData = [4]byte{'d', 'a', 't', 'a'}
)

// readChunkInfo reads a single chunk header from the current position.
// Returns io.EOF if there are no more bytes to read.
func readChunkInfo(reader io.ReadSeeker) (chunkInfo, error) {
	offset, err := reader.Seek(0, io.SeekCurrent)
	if err != nil {
		return chunkInfo{}, fmt.Errorf("seeking current position: %w", err)
	}

	var header [chunkHeaderSize]byte

	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return chunkInfo{}, fmt.Errorf("reading chunk header: %w", err)
	}

	return chunkInfo{
		offset: offset,
		size:   int64(binary.LittleEndian.Uint32(header[4:])),
		fourCC: [4]byte{header[0], header[1], header[2], header[3]},
	}, nil
}

// seekToEnd seeks past this chunk and its pad byte (to the next sibling).
func (info *chunkInfo) seekToEnd(reader io.ReadSeeker) error {
	_, err := reader.Seek(info.offset+chunkHeaderSize+info.size+info.size&1, io.SeekStart)
	if err != nil {
		return fmt.Errorf("seeking past chunk: %w", err)
	}

	return nil
}

// iterChunks calls callback for each chunk after the RIFF header, with the
// reader positioned on the chunk payload. callback returns true to stop.
func iterChunks(reader io.ReadSeeker, callback func(chunk chunkInfo) (stop bool, err error)) error {
	for {
		chunk, err := readChunkInfo(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}

			return err
		}

		stop, err := callback(chunk)
		if err != nil {
			return err
		}

		if stop {
			return nil
		}

		if err := chunk.seekToEnd(reader); err != nil {
			return err
		}
	}
}

// Read parses a RIFF/WAVE stream and returns its PCM payload.
// Only integer PCM (plain or extensible) is accepted.
func Read(reader io.ReadSeeker) ([]byte, Format, error) {
	var riff [riffHeaderSize]byte

	if _, err := io.ReadFull(reader, riff[:]); err != nil {
		return nil, Format{}, fmt.Errorf("%w: %w", ErrNotWAVE, err)
	}

	if [4]byte(riff[0:4]) != fourCCRIFF || [4]byte(riff[8:12]) != fourCCWAVE {
		return nil, Format{}, ErrNotWAVE
	}

	var (
		format    Format
		hasFormat bool
		pcm       []byte
		hasData   bool
	)

	err := iterChunks(reader, func(chunk chunkInfo) (bool, error) {
		switch chunk.fourCC {
		case fourCCFmt:
			parsed, err := readFormat(reader, chunk)
			if err != nil {
				return true, err
			}

			format, hasFormat = parsed, true

		case fourCCData:
			if !hasFormat {
				return true, ErrNoFormat
			}

			data, err := readData(reader, chunk, format)
			if err != nil {
				return true, err
			}

			pcm, hasData = data, true

			return true, nil
		}

		return false, nil
	})
	if err != nil {
		return nil, Format{}, err
	}

	if !hasData {
		return nil, Format{}, ErrNoData
	}

	return pcm, format, nil
}

func readFormat(reader io.Reader, chunk chunkInfo) (Format, error) {
	if chunk.size < minFmtSize || chunk.size > 1<<16 {
		return Format{}, fmt.Errorf("%w: fmt chunk of %d bytes", ErrInvalidChunkSize, chunk.size)
	}

	payload := make([]byte, chunk.size)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return Format{}, fmt.Errorf("reading fmt chunk: %w", err)
	}

	tag := binary.LittleEndian.Uint16(payload[0:])
	format := Format{
		Channels:      int(binary.LittleEndian.Uint16(payload[2:])),
		SampleRate:    int(binary.LittleEndian.Uint32(payload[4:])),
		BitsPerSample: int(binary.LittleEndian.Uint16(payload[14:])),
	}

	if tag == formatExtensible {
		if len(payload) < extensibleSize {
			return Format{}, fmt.Errorf("%w: extensible fmt chunk of %d bytes", ErrInvalidChunkSize, len(payload))
		}

		// The first two bytes of the sub-format GUID carry the format tag.
		tag = binary.LittleEndian.Uint16(payload[24:])
	}

	if tag != formatPCM {
		return Format{}, fmt.Errorf("%w: format tag %#04x", ErrUnsupported, tag)
	}

	if format.Channels < 1 || format.BitsPerSample < 1 || format.SampleRate < 1 {
		return Format{}, fmt.Errorf("%w: %d channels, %d bits, %d Hz",
			ErrUnsupported, format.Channels, format.BitsPerSample, format.SampleRate)
	}

	return format, nil
}

func readData(reader io.ReadSeeker, chunk chunkInfo, format Format) ([]byte, error) {
	payload := chunk.offset + chunkHeaderSize

	end, err := reader.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seeking to end of file: %w", err)
	}

	if _, err := reader.Seek(payload, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to data payload: %w", err)
	}

	size := chunk.size

	switch {
	case size == 0xFFFFFFFF:
		// Streaming writers leave the size at its maximum; trust the file end.
		size = end - payload
	case size > end-payload:
		return nil, fmt.Errorf("%w: data chunk of %d bytes, %d available", ErrInvalidChunkSize, size, end-payload)
	}

	size -= size % int64(format.BlockAlign())

	pcm := make([]byte, size)
	if _, err := io.ReadFull(reader, pcm); err != nil {
		return nil, fmt.Errorf("%w: data chunk: %w", ErrInvalidChunkSize, err)
	}

	return pcm, nil
}
