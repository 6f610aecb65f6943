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

package lpc

import "errors"

// LPC error sentinels.
//
//revive:disable:exported
var (
	ErrQuantize      = errors.New("lpc: coefficients cannot be quantized")
	ErrPrecision     = errors.New("lpc: unsupported coefficient precision")
	ErrOrder         = errors.New("lpc: invalid predictor order")
	ErrResidualRange = errors.New("lpc: residual exceeds 32 bits")
	ErrNoGain        = errors.New("lpc: prediction does not reduce variance")
)
