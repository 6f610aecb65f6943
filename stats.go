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
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/mycophonic/saprobe-straw/internal/format"
)

// Reasons a channel was stored raw instead of predicted.
const (
	fallbackTooShort      = "too_short"
	fallbackAnalysis      = "analysis"
	fallbackUnstable      = "unstable"
	fallbackQuantize      = "quantize"
	fallbackNoGain        = "no_gain"
	fallbackResidualRange = "residual_range"
	fallbackOverflow      = "rice_overflow"
)

// Stats summarizes one encode or decode call.
type Stats struct {
	Frames      int
	PCMBytes    int64
	StreamBytes int64
	// Subframes counts subframes by type name (constant, raw, lpc, lpc_common).
	Subframes map[string]int
	// Fallbacks counts raw subframes by the reason prediction was rejected.
	Fallbacks    map[string]int
	MidSidePairs int
}

func newStats() Stats {
	return Stats{Subframes: map[string]int{}, Fallbacks: map[string]int{}}
}

// Ratio returns stream size over PCM size.
func (s Stats) Ratio() float64 {
	if s.PCMBytes == 0 {
		return 0
	}

	return float64(s.StreamBytes) / float64(s.PCMBytes)
}

func (s *Stats) addSubframe(kind format.SubframeType) {
	s.Subframes[kind.String()]++
}

func (s *Stats) merge(other Stats) {
	s.Frames += other.Frames
	s.MidSidePairs += other.MidSidePairs

	for k, v := range other.Subframes {
		s.Subframes[k] += v
	}

	for k, v := range other.Fallbacks {
		s.Fallbacks[k] += v
	}
}

// Print writes a human readable report.
func (s Stats) Print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "frames: %d\npcm bytes: %d\nstream bytes: %d\nratio: %.4f\nmid-side pairs: %d\n",
		s.Frames, s.PCMBytes, s.StreamBytes, s.Ratio(), s.MidSidePairs)
	if err != nil {
		return err
	}

	for _, kind := range slices.Sorted(maps.Keys(s.Subframes)) {
		if _, err := fmt.Fprintf(w, "subframes %s: %d\n", kind, s.Subframes[kind]); err != nil {
			return err
		}
	}

	for _, reason := range slices.Sorted(maps.Keys(s.Fallbacks)) {
		if _, err := fmt.Fprintf(w, "raw fallback %s: %d\n", reason, s.Fallbacks[reason]); err != nil {
			return err
		}
	}

	return nil
}
