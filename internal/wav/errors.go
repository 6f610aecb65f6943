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

package wav

import "errors"

// WAVE parsing error sentinels.
//
//revive:disable:exported
var (
	ErrNotWAVE          = errors.New("wav: not a RIFF/WAVE stream")
	ErrInvalidChunkSize = errors.New("wav: invalid chunk size")
	ErrNoFormat         = errors.New("wav: no fmt chunk before data")
	ErrNoData           = errors.New("wav: no data chunk")
	ErrUnsupported      = errors.New("wav: unsupported sample encoding")
	ErrTooLarge         = errors.New("wav: data exceeds the RIFF size limit")
)
