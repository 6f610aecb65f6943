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

//nolint:gosec // Both outputs are range checked or provably within int32.
package correct

import (
	"fmt"
	"math"
)

// MidSide converts a channel pair into (side, mid) with side = a - b and
// mid = floor((a + b) / 2). The low bit of a + b is the low bit of side,
// so nothing is lost.
func MidSide(a, b []int32) (side, mid []int32, err error) {
	if len(a) != len(b) {
		return nil, nil, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, len(a), len(b))
	}

	side = make([]int32, len(a))
	mid = make([]int32, len(a))

	for i := range a {
		diff := int64(a[i]) - int64(b[i])
		if diff > math.MaxInt32 || diff < math.MinInt32 {
			return nil, nil, fmt.Errorf("%w: sample %d", ErrSideRange, i)
		}

		side[i] = int32(diff)
		mid[i] = int32((int64(a[i]) + int64(b[i])) >> 1)
	}

	return side, mid, nil
}

// LeftRight inverts MidSide into a and b, which must hold len(side) samples.
func LeftRight(side, mid, a, b []int32) {
	for i := range side {
		diff := int64(side[i])
		sum := int64(mid[i])<<1 | diff&1
		a[i] = int32((sum + diff) >> 1)
		b[i] = int32((sum - diff) >> 1)
	}
}
