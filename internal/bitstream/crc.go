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

package bitstream

// CRC-8 (poly 0x07) and CRC-16 (poly 0x8005), both MSB-first with zero init.
// hash/crc32 and hash/crc64 have no 8 or 16 bit variants.

//nolint:gochecknoglobals
var (
	crc8Table  [256]uint8
	crc16Table [256]uint16
)

//nolint:gochecknoinits
func init() {
	const (
		poly8  = uint8(0x07)
		poly16 = uint16(0x8005)
	)

	for i := range 256 {
		crc := uint8(i)
		for range 8 {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly8
			} else {
				crc <<= 1
			}
		}

		crc8Table[i] = crc
	}

	for i := range 256 {
		crc := uint16(i) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly16
			} else {
				crc <<= 1
			}
		}

		crc16Table[i] = crc
	}
}

// CRC8 computes the header checksum of data.
func CRC8(data []byte) uint8 {
	var crc uint8
	for _, v := range data {
		crc = crc8Table[crc^v]
	}

	return crc
}

// CRC16 computes the frame checksum of data.
func CRC16(data []byte) uint16 {
	return CRC16Update(0, data)
}

// CRC16Update updates a running CRC-16 with additional data.
func CRC16Update(crc uint16, data []byte) uint16 {
	for _, v := range data {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^v]
	}

	return crc
}
