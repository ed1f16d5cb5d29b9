package asr

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// melConfig mirrors the log-mel front-end every CTC/embedding ONNX model in
// this package expects: 16 kHz, 10ms hop, 25ms window.
type melConfig struct {
	SampleRate int
	NMels      int
	HopLength  int
	WinLength  int
	NFFT       int
}

// melProcessor computes a log-mel spectrogram via gonum's FFT, avoiding a
// hand-rolled DFT.
type melProcessor struct {
	config  melConfig
	filters [][]float64
	window  []float64
	fft     *fourier.FFT
}

func newMelProcessor(cfg melConfig) *melProcessor {
	return &melProcessor{
		config:  cfg,
		filters: melFilterbank(cfg.NFFT, cfg.NMels, cfg.SampleRate),
		window:  hannWindow(cfg.WinLength),
		fft:     fourier.NewFFT(cfg.NFFT),
	}
}

// Compute returns [frame][mel] log-mel energies and the frame count.
func (p *melProcessor) Compute(samples []float32) ([][]float32, int) {
	numFrames := 1
	if len(samples) >= p.config.WinLength {
		numFrames = (len(samples)-p.config.WinLength)/p.config.HopLength + 1
	}

	melSpec := make([][]float32, numFrames)
	for frame := 0; frame < numFrames; frame++ {
		start := frame * p.config.HopLength

		frameData := make([]float64, p.config.NFFT)
		for i := 0; i < p.config.WinLength; i++ {
			idx := start + i
			if idx >= 0 && idx < len(samples) {
				frameData[i] = float64(samples[idx]) * p.window[i]
			}
		}

		coeffs := p.fft.Coefficients(nil, frameData)

		power := make([]float64, p.config.NFFT/2+1)
		for i := range power {
			re, im := real(coeffs[i]), imag(coeffs[i])
			power[i] = re*re + im*im
		}

		melSpec[frame] = make([]float32, p.config.NMels)
		for m := 0; m < p.config.NMels; m++ {
			var sum float64
			for k, pw := range power {
				sum += pw * p.filters[m][k]
			}
			if sum < 1e-9 {
				sum = 1e-9
			}
			melSpec[frame][m] = float32(math.Log(sum))
		}
	}
	return melSpec, numFrames
}

// melFilterbank builds a torchaudio-compatible triangular mel filterbank.
func melFilterbank(nFFT, nMels, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 { return 2595.0 * math.Log10(1.0+hz/700.0) }
	melToHz := func(mel float64) float64 { return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0) }

	numBins := nFFT/2 + 1
	fMax := float64(sampleRate) / 2.0

	freqs := make([]float64, numBins)
	for i := range freqs {
		freqs[i] = float64(i) * fMax / float64(numBins-1)
	}

	mMin, mMax := hzToMel(0), hzToMel(fMax)
	pts := make([]float64, nMels+2)
	for i := range pts {
		pts[i] = melToHz(mMin + float64(i)*(mMax-mMin)/float64(nMels+1))
	}

	diffs := make([]float64, nMels+1)
	for i := range diffs {
		diffs[i] = pts[i+1] - pts[i]
	}

	filters := make([][]float64, nMels)
	for m := range filters {
		filters[m] = make([]float64, numBins)
		for k, freq := range freqs {
			lower := (freq - pts[m]) / diffs[m]
			upper := (pts[m+2] - freq) / diffs[m+1]
			val := math.Min(lower, upper)
			if val < 0 {
				val = 0
			}
			filters[m][k] = val
		}
	}
	return filters
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}
