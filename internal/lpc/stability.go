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

import "math"

// Stable reports whether the synthesis filter 1 / (1 - sum a_k z^-k) is
// stable, i.e. every root of its denominator lies inside the unit circle.
// The step-down recursion recovers the reflection coefficients; the filter
// is stable iff each has magnitude below one.
func Stable(coeffs []float64) bool {
	cur := append([]float64(nil), coeffs...)
	next := make([]float64, len(coeffs))

	for m := len(cur); m >= 1; m-- {
		refl := cur[m-1]
		if math.IsNaN(refl) || math.Abs(refl) >= 1 {
			return false
		}

		den := 1 - refl*refl

		for j := range m - 1 {
			next[j] = (cur[j] + refl*cur[m-2-j]) / den
		}

		cur, next = next, cur
	}

	return true
}
