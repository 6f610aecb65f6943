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

package format

import "errors"

// Container error sentinels.
//
//revive:disable:exported
var (
	ErrMagic      = errors.New("straw: not a straw stream")
	ErrHeader     = errors.New("straw: invalid stream header")
	ErrSyncLost   = errors.New("straw: frame sync code not found")
	ErrHeaderCRC  = errors.New("straw: frame header CRC-8 mismatch")
	ErrFrameCRC   = errors.New("straw: frame CRC-16 mismatch")
	ErrTruncated  = errors.New("straw: truncated frame")
	ErrSubframe   = errors.New("straw: invalid subframe")
	ErrFieldRange = errors.New("straw: value does not fit its field")
)
