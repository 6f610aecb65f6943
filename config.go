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
	"strings"

	"github.com/mycophonic/saprobe-straw/internal/blocking"
	"github.com/mycophonic/saprobe-straw/internal/correct"
	"github.com/mycophonic/saprobe-straw/internal/format"
	"github.com/mycophonic/saprobe-straw/internal/lpc"
)

// Corrections selects the channel corrections applied before encoding.
type Corrections uint8

// Channel corrections, applied in declaration order and reverted in reverse.
const (
	CorrectShift Corrections = 1 << iota
	CorrectBias
	CorrectGain

	CorrectNone Corrections = 0
	CorrectAll              = CorrectShift | CorrectBias | CorrectGain
)

//nolint:gochecknoglobals
var correctionNames = []struct {
	flag Corrections
	name string
}{
	{CorrectShift, "shift"},
	{CorrectBias, "bias"},
	{CorrectGain, "gain"},
}

// String lists the enabled corrections, comma separated.
func (c Corrections) String() string {
	names := make([]string, 0, len(correctionNames))

	for _, entry := range correctionNames {
		if c&entry.flag != 0 {
			names = append(names, entry.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ",")
}

// ParseCorrections parses a comma separated list such as "bias,gain".
// "none" and the empty string disable every correction, "all" enables them.
func ParseCorrections(list string) (Corrections, error) {
	var out Corrections

	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(strings.ToLower(field))

		switch field {
		case "", "none":
			continue
		case "all":
			out |= CorrectAll

			continue
		}

		found := false

		for _, entry := range correctionNames {
			if entry.name == field {
				out |= entry.flag
				found = true
			}
		}

		if !found {
			return CorrectNone, fmt.Errorf("%w: unknown correction %q", ErrConfig, field)
		}
	}

	return out, nil
}

// Encoder defaults.
const (
	DefaultOrder          = 10
	DefaultPrecision      = 12
	DefaultResponsiveness = 20
)

// EncoderConfig holds the encoder tunables.
type EncoderConfig struct {
	// Order is the LPC predictor order (1 to 32).
	Order int
	// Precision is the quantized coefficient width in bits, sign included.
	Precision int
	// CommonLPC shares one coefficient set across all channels of a frame.
	CommonLPC bool
	// CheckStability rejects unstable predictors (the subframe is stored raw).
	CheckStability bool
	// MidSide decorrelates residual pairs (2i, 2i+1) when it saves bits.
	MidSide bool

	// DynamicBlocks segments by short-term energy; otherwise blocks are
	// BlockSize samples long.
	DynamicBlocks bool
	BlockSize     int
	Blocking      blocking.Config

	// Responsiveness is the Rice adaptation period; 0 selects static coding.
	Responsiveness int

	Corrections Corrections
	// MaxLag bounds the shift correction search.
	MaxLag int
}

// DefaultEncoderConfig returns the stock encoder settings.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Order:          DefaultOrder,
		Precision:      DefaultPrecision,
		MidSide:        true,
		DynamicBlocks:  true,
		BlockSize:      blocking.DefaultFixedBlock,
		Blocking:       blocking.DefaultConfig(),
		Responsiveness: DefaultResponsiveness,
		Corrections:    CorrectNone,
		MaxLag:         correct.MaxLag,
	}
}

// Validate checks every field.
func (c EncoderConfig) Validate() error {
	switch {
	case c.Order < 1 || c.Order > lpc.MaxOrder:
		return fmt.Errorf("%w: LPC order %d (1 to %d)", ErrConfig, c.Order, lpc.MaxOrder)
	case c.Precision < lpc.MinPrecision || c.Precision > lpc.MaxPrecision:
		return fmt.Errorf("%w: precision %d (%d to %d)", ErrConfig, c.Precision, lpc.MinPrecision, lpc.MaxPrecision)
	case c.Responsiveness < 0 || c.Responsiveness > format.MaxResponsiveness:
		return fmt.Errorf("%w: rice responsiveness %d (0 to %d)", ErrConfig, c.Responsiveness, format.MaxResponsiveness)
	case c.MaxLag < 0 || c.MaxLag > correct.MaxLag:
		return fmt.Errorf("%w: max lag %d (0 to %d)", ErrConfig, c.MaxLag, correct.MaxLag)
	case c.Corrections&^CorrectAll != 0:
		return fmt.Errorf("%w: corrections %#x", ErrConfig, uint8(c.Corrections))
	}

	if c.DynamicBlocks {
		if err := c.Blocking.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
	} else if c.BlockSize < 1 || c.BlockSize > format.MaxBlockSize {
		return fmt.Errorf("%w: block size %d (1 to %d)", ErrConfig, c.BlockSize, format.MaxBlockSize)
	}

	return nil
}
