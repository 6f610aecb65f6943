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
	"errors"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/mycophonic/saprobe-straw/internal/correct"
	"github.com/mycophonic/saprobe-straw/internal/format"
	"github.com/mycophonic/saprobe-straw/internal/lpc"
	"github.com/mycophonic/saprobe-straw/internal/rice"
)

// frameBuilder turns one block of every channel into a frame.
// It holds no mutable state and is shared by all workers.
type frameBuilder struct {
	cfg    EncoderConfig
	bps    int
	coder  rice.Coder
	logger logrus.FieldLogger
}

func (fb *frameBuilder) build(seq int, block [][]int32) (*format.Frame, Stats) {
	stats := newStats()
	stats.Frames = 1

	frame := &format.Frame{
		Seq:       uint64(seq),
		BlockSize: len(block[0]),
		Subframes: make([]format.Subframe, len(block)),
	}

	var common *lpc.QLP
	if fb.cfg.CommonLPC {
		common = fb.commonPredictor(block)
	}

	carried := false

	for idx, ch := range block {
		sf, reason := fb.subframe(ch, common, !carried)

		if reason != "" {
			stats.Fallbacks[reason]++

			fb.logger.WithFields(logrus.Fields{
				"frame":   seq,
				"channel": idx,
				"reason":  reason,
			}).Debug("storing subframe verbatim")
		}

		if sf.Type() == format.TypeCommonLPC {
			carried = true
		}

		frame.Subframes[idx] = sf
	}

	if fb.cfg.MidSide {
		stats.MidSidePairs = fb.decorrelate(frame)
	}

	for _, sf := range frame.Subframes {
		stats.addSubframe(sf.Type())
	}

	return frame, stats
}

func isConstant(ch []int32) bool {
	for _, v := range ch[1:] {
		if v != ch[0] {
			return false
		}
	}

	return true
}

// commonPredictor derives the frame's shared coefficient set from every
// channel that is not constant. It returns nil when no usable set exists, in
// which case channels fall back to their own predictors.
func (fb *frameBuilder) commonPredictor(block [][]int32) *lpc.QLP {
	order := min(fb.cfg.Order, len(block[0])-1)
	if order < 1 {
		return nil
	}

	active := make([][]int32, 0, len(block))

	for _, ch := range block {
		if !isConstant(ch) {
			active = append(active, ch)
		}
	}

	coeffs := lpc.AnalyzeCommon(active, order)
	if coeffs == nil || (fb.cfg.CheckStability && !lpc.Stable(coeffs)) {
		return nil
	}

	qlp, err := lpc.Quantize(coeffs, fb.cfg.Precision)
	if err != nil {
		return nil
	}

	return &qlp
}

// subframe picks the representation of one channel. A non-empty reason
// explains why a verbatim subframe was chosen over prediction.
// withCoeffs tells whether a shared coefficient set would be serialized by
// this subframe.
func (fb *frameBuilder) subframe(ch []int32, common *lpc.QLP, withCoeffs bool) (format.Subframe, string) {
	if isConstant(ch) {
		return &format.Constant{Value: ch[0]}, ""
	}

	raw := &format.Raw{Samples: ch}

	var qlp lpc.QLP

	if common != nil {
		qlp = *common
	} else {
		order := min(fb.cfg.Order, len(ch)-1)
		if order < 1 {
			return raw, fallbackTooShort
		}

		coeffs := lpc.Analyze(ch, order)
		if coeffs == nil {
			return raw, fallbackAnalysis
		}

		if fb.cfg.CheckStability && !lpc.Stable(coeffs) {
			return raw, fallbackUnstable
		}

		var err error

		if qlp, err = lpc.Quantize(coeffs, fb.cfg.Precision); err != nil {
			return raw, fallbackQuantize
		}

		withCoeffs = true
	}

	residual, err := lpc.Predict(ch, qlp)

	switch {
	case errors.Is(err, lpc.ErrNoGain):
		return raw, fallbackNoGain
	case errors.Is(err, lpc.ErrResidualRange):
		return raw, fallbackResidualRange
	case err != nil:
		return raw, fallbackTooShort
	}

	param := fb.coder.InitialParam(residual)

	budget := format.ResidualBudget(qlp, len(ch), fb.bps, withCoeffs)
	if budget < 0 {
		return raw, fallbackOverflow
	}

	if _, err := fb.coder.Cost(residual, param, budget); err != nil {
		return raw, fallbackOverflow
	}

	predicted := format.LPC{
		QLP:      qlp,
		Warmup:   slices.Clone(ch[:qlp.Order()]),
		Param:    param,
		Residual: residual,
	}

	if common != nil {
		return &format.CommonLPC{LPC: predicted}, ""
	}

	return &predicted, ""
}

// decorrelate replaces the residuals of channel pairs (2i, 2i+1) by their
// side and mid signals where that codes smaller, and returns the number of
// pairs converted.
func (fb *frameBuilder) decorrelate(frame *format.Frame) int {
	pairs := format.Pairs(len(frame.Subframes))
	if pairs == 0 {
		return 0
	}

	carrier := slices.IndexFunc(frame.Subframes, func(sf format.Subframe) bool {
		return sf.Type() == format.TypeCommonLPC
	})

	budget := func(idx int, pred *format.LPC) int {
		withCoeffs := frame.Subframes[idx].Type() == format.TypeLPC || idx == carrier

		return format.ResidualBudget(pred.QLP, frame.BlockSize, fb.bps, withCoeffs)
	}

	mask := make([]bool, pairs)
	converted := 0

	for pair := range pairs {
		left, right := 2*pair, 2*pair+1

		predA, okA := format.Predicted(frame.Subframes[left])
		predB, okB := format.Predicted(frame.Subframes[right])

		if !okA || !okB || predA.QLP.Order() != predB.QLP.Order() {
			continue
		}

		side, mid, err := correct.MidSide(predA.Residual, predB.Residual)
		if err != nil {
			continue
		}

		costA, errA := fb.coder.Cost(predA.Residual, predA.Param, rice.Unbounded)
		costB, errB := fb.coder.Cost(predB.Residual, predB.Param, rice.Unbounded)

		sideParam := fb.coder.InitialParam(side)
		midParam := fb.coder.InitialParam(mid)

		costSide, errSide := fb.coder.Cost(side, sideParam, budget(left, predA))
		costMid, errMid := fb.coder.Cost(mid, midParam, budget(right, predB))

		if err := errors.Join(errA, errB, errSide, errMid); err != nil || costSide+costMid >= costA+costB {
			continue
		}

		predA.Residual, predA.Param = side, sideParam
		predB.Residual, predB.Param = mid, midParam
		mask[pair] = true
		converted++
	}

	if converted > 0 {
		frame.MidSide = mask
	}

	return converted
}
