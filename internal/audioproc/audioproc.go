// Package audioproc normalises arbitrary-rate audio frames into the
// mono float32 16 kHz signal the ASR worker expects (C1).
package audioproc

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ASRSampleRate is the sample rate the rolling ASR worker consumes.
const ASRSampleRate = 16000

// ToMono averages interleaved multi-channel samples down to one channel.
// channels <= 1 returns samples unchanged.
func ToMono(samples []float32, channels int) []float32 {
	if channels <= 1 || len(samples) == 0 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample performs linear-interpolation resampling from fromSR to toSR.
// Higher-quality resampling is permitted but not required by the contract.
func Resample(samples []float32, fromSR, toSR int) []float32 {
	if fromSR == toSR || len(samples) == 0 {
		return samples
	}
	outLen := int(math.Round(float64(len(samples)) * float64(toSR) / float64(fromSR)))
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)
	ratio := float64(len(samples)-1) / float64(maxInt(outLen-1, 1))
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		lo := int(math.Floor(srcPos))
		frac := srcPos - float64(lo)
		hi := lo + 1
		if hi >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = float32((1-frac)*float64(samples[lo]) + frac*float64(samples[hi]))
	}
	return out
}

// Normalise converts an arbitrary frame (already mono, already resampled)
// to the peak-normalised int16 buffer the injected ASR engine expects.
func Normalise(samples []float32) []int16 {
	if len(samples) == 0 {
		return nil
	}
	peak := peakAbs(samples)
	out := make([]int16, len(samples))
	if peak == 0 {
		return out
	}
	for i, s := range samples {
		v := (float64(s) / peak) * 32767
		out[i] = saturate(v)
	}
	return out
}

func peakAbs(samples []float32) float64 {
	abs := make([]float64, len(samples))
	for i, s := range samples {
		abs[i] = math.Abs(float64(s))
	}
	return floats.Max(abs)
}

func saturate(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(math.Round(v))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
