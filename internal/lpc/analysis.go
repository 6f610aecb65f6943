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

// Linear prediction analysis: windowed autocorrelation solved with the
// Levinson-Durbin recursion.

const (
	// MaxOrder is the maximum predictor order (5-bit order-1 field).
	MaxOrder = 32

	// TukeyAlpha is the taper ratio of the analysis window.
	TukeyAlpha = 0.5

	// sampleScale normalizes 16-bit full scale to 1.0.
	sampleScale = 1 << 15
)

// Window returns the periodic Tukey window of length n with TukeyAlpha taper.
// The periodic form is the symmetric window of length n+1 with the last
// point dropped.
func Window(n int) []float64 {
	if n <= 0 {
		return nil
	}

	win := make([]float64, n)

	if n == 1 {
		win[0] = 1

		return win
	}

	size := n + 1
	span := float64(size - 1)
	width := int(math.Floor(TukeyAlpha * span / 2))

	for i := range n {
		switch {
		case i <= width:
			win[i] = 0.5 * (1 + math.Cos(math.Pi*(-1+2*float64(i)/TukeyAlpha/span)))
		case i >= size-width-1:
			win[i] = 0.5 * (1 + math.Cos(math.Pi*(-2/TukeyAlpha+1+2*float64(i)/TukeyAlpha/span)))
		default:
			win[i] = 1
		}
	}

	return win
}

// Autocorrelation returns lags autocorrelation values of the normalized,
// windowed signal.
func Autocorrelation(signal []int32, window []float64, lags int) []float64 {
	scaled := make([]float64, len(signal))
	for i, v := range signal {
		scaled[i] = float64(v) / sampleScale * window[i]
	}

	acf := make([]float64, lags)

	for lag := range min(lags, len(scaled)) {
		var sum float64
		for i := lag; i < len(scaled); i++ {
			sum += scaled[i-lag] * scaled[i]
		}

		acf[lag] = sum
	}

	return acf
}

// Solve runs the Levinson-Durbin recursion on acf (length order+1) and
// returns the order predictor coefficients, so that
// x[n] ~ sum(coeffs[j] * x[n-j-1]). It returns nil when the system is
// singular.
func Solve(acf []float64) []float64 {
	order := len(acf) - 1
	if order < 1 {
		return nil
	}

	coeffs := make([]float64, order)
	prev := make([]float64, order)
	errPower := acf[0]

	for i := range order {
		if !(errPower > 0) {
			return nil
		}

		acc := acf[i+1]
		for j := range i {
			acc -= coeffs[j] * acf[i-j]
		}

		refl := acc / errPower

		copy(prev, coeffs[:i])

		for j := range i {
			coeffs[j] = prev[j] - refl*prev[i-1-j]
		}

		coeffs[i] = refl
		errPower *= 1 - refl*refl
	}

	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil
		}
	}

	return coeffs
}

func allZero(signal []int32) bool {
	for _, v := range signal {
		if v != 0 {
			return false
		}
	}

	return true
}

// Analyze computes order predictor coefficients for one channel.
// It returns nil for silent or unsolvable input.
func Analyze(signal []int32, order int) []float64 {
	if order < 1 || allZero(signal) {
		return nil
	}

	acf := Autocorrelation(signal, Window(len(signal)), order+1)

	return Solve(acf)
}

// AnalyzeCommon computes one coefficient set for several equally long
// channels from their averaged autocorrelation. It returns nil if any
// channel is silent.
func AnalyzeCommon(channels [][]int32, order int) []float64 {
	if order < 1 || len(channels) == 0 {
		return nil
	}

	window := Window(len(channels[0]))
	mean := make([]float64, order+1)

	for _, ch := range channels {
		if allZero(ch) {
			return nil
		}

		for lag, v := range Autocorrelation(ch, window, order+1) {
			mean[lag] += v
		}
	}

	for lag := range mean {
		mean[lag] /= float64(len(channels))
	}

	return Solve(mean)
}
