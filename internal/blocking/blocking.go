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

// Package blocking splits a recording into frames, either at a fixed size or
// where the short-time energy crosses a threshold.
package blocking

import (
	"errors"
	"fmt"
)

const (
	// MaxBlockSize is the largest frame a 16-bit size field describes.
	MaxBlockSize = 1 << 16

	DefaultMinBlock   = 1 << 11
	DefaultMaxBlock   = 1 << 13
	DefaultThreshold  = 20000
	DefaultResolution = 10 // log2 of the energy window
	DefaultFixedBlock = 1 << 12
)

// ErrConfig reports inconsistent segmentation settings.
var ErrConfig = errors.New("blocking: invalid configuration")

// Config drives energy segmentation.
type Config struct {
	MinBlock  int
	MaxBlock  int
	Threshold float64
	// Resolution is the log2 of the energy window length in samples.
	Resolution int
}

// DefaultConfig returns the stock segmentation settings.
func DefaultConfig() Config {
	return Config{
		MinBlock:   DefaultMinBlock,
		MaxBlock:   DefaultMaxBlock,
		Threshold:  DefaultThreshold,
		Resolution: DefaultResolution,
	}
}

// Window returns the energy window length in samples.
func (c Config) Window() int {
	return 1 << c.Resolution
}

// Validate checks the settings.
func (c Config) Validate() error {
	switch {
	case c.MinBlock < 1:
		return fmt.Errorf("%w: min block %d", ErrConfig, c.MinBlock)
	case c.MaxBlock < c.MinBlock || c.MaxBlock > MaxBlockSize:
		return fmt.Errorf("%w: max block %d (min %d, limit %d)", ErrConfig, c.MaxBlock, c.MinBlock, MaxBlockSize)
	case c.Resolution < 0 || c.Resolution > 16:
		return fmt.Errorf("%w: resolution %d", ErrConfig, c.Resolution)
	case c.Threshold < 0:
		return fmt.Errorf("%w: threshold %v", ErrConfig, c.Threshold)
	}

	return nil
}

// Fixed returns block sizes of size samples covering total, the last one
// possibly shorter.
func Fixed(total, size int) []int {
	if total <= 0 || size <= 0 {
		return nil
	}

	sizes := make([]int, 0, (total+size-1)/size)

	for pos := 0; pos < total; pos += size {
		sizes = append(sizes, min(size, total-pos))
	}

	return sizes
}

// Energies returns the mean squared amplitude of each window, averaged over
// channels.
func Energies(channels [][]int32, window int) []float64 {
	if len(channels) == 0 || window <= 0 {
		return nil
	}

	total := len(channels[0])
	out := make([]float64, 0, (total+window-1)/window)

	for start := 0; start < total; start += window {
		end := min(start+window, total)

		var sum float64

		for _, ch := range channels {
			for _, v := range ch[start:end] {
				sum += float64(v) * float64(v)
			}
		}

		out = append(out, sum/float64((end-start)*len(channels)))
	}

	return out
}

// crossings returns the indices i > 0 where the sign of values[i]-threshold
// differs from values[i-1]-threshold, zero counting as positive.
func crossings(values []float64, threshold float64) []int {
	var out []int

	for i := 1; i < len(values); i++ {
		if (values[i-1] >= threshold) != (values[i] >= threshold) {
			out = append(out, i)
		}
	}

	return out
}

// ByEnergy returns block sizes covering the channels. Boundaries are placed
// where windowed energy crosses the threshold, then adjusted so that blocks
// stay within [MinBlock, MaxBlock]; only the final block may fall short of
// MinBlock, and only when merging it would exceed MaxBlock.
func ByEnergy(channels [][]int32, cfg Config) ([]int, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, nil
	}

	total := len(channels[0])
	window := cfg.Window()

	// A trailing sentinel at the threshold closes a high-energy run at the end.
	energies := append(Energies(channels, window), cfg.Threshold)

	var bounds []int

	last := 0

	advance := func(target int) {
		for target-last > cfg.MaxBlock {
			last += cfg.MaxBlock
			bounds = append(bounds, last)
		}
	}

	for _, idx := range crossings(energies, cfg.Threshold) {
		candidate := min(idx*window, total)
		if candidate <= last {
			continue
		}

		advance(candidate)

		if candidate-last >= cfg.MinBlock && candidate < total {
			bounds = append(bounds, candidate)
			last = candidate
		}
	}

	advance(total)

	if total > last {
		bounds = append(bounds, total)
	}

	// Fold a short tail into its predecessor when the result still fits.
	if n := len(bounds); n >= 2 {
		tail := bounds[n-1] - bounds[n-2]

		prevStart := 0
		if n >= 3 {
			prevStart = bounds[n-3]
		}

		if tail < cfg.MinBlock && bounds[n-1]-prevStart <= cfg.MaxBlock {
			bounds = append(bounds[:n-2], bounds[n-1])
		}
	}

	sizes := make([]int, len(bounds))
	prev := 0

	for i, b := range bounds {
		sizes[i] = b - prev
		prev = b
	}

	return sizes, nil
}
