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

import "errors"

// Public sentinel errors for consumer error matching.
var (
	// ErrConfig indicates an invalid encoder configuration or an unsupported
	// PCM format (bit depth, channel count, sample rate, buffer shape).
	ErrConfig = errors.New("invalid configuration")

	// ErrDecode indicates a corrupt or truncated stream
	// (bad magic, sync loss, checksum mismatch, invalid subframes).
	ErrDecode = errors.New("decode failed")

	// ErrIntegrity indicates that decoded audio does not match the content
	// hash stored in the stream header.
	ErrIntegrity = errors.New("content hash mismatch")

	// ErrEncode indicates an unexpected failure while producing a stream.
	ErrEncode = errors.New("encode failed")
)
