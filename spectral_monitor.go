package alarm

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
)

// SpectralMonitor converts fixed-size PCM chunks into sparse lists of
// frequency peaks with sub-bin precision, gated by an adaptive
// median-based noise floor. Grounded on nwpulei-cw's spectrum_monitor.go
// (calculateWelch) and dsp.go (FindDominantFrequency), collapsed from
// Welch-averaged multi-segment analysis down to the single-chunk,
// single-FFT contract spec.md §4.1 describes.
type SpectralMonitor struct {
	sampleRate   float64
	chunkSize    int
	minMagnitude float64
	minSharpness float64

	window  []float64
	binFreq float64 // sampleRate / chunkSize
}

// NewSpectralMonitor builds a monitor for chunkSize-sample chunks at
// sampleRate. minMagnitude is the absolute floor below which even a
// noise-floor-relative threshold is ignored (spec §4.1 step 5).
func NewSpectralMonitor(sampleRate float64, chunkSize int, minMagnitude float64) *SpectralMonitor {
	return &SpectralMonitor{
		sampleRate:   sampleRate,
		chunkSize:    chunkSize,
		minMagnitude: minMagnitude,
		minSharpness: 1.5,
		window:       hannWindow(chunkSize),
		binFreq:      sampleRate / float64(chunkSize),
	}
}

// hannWindow precomputes a length-n Hann window: 0.5*(1-cos(2*pi*i/(n-1))).
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// Process runs one chunk through the DSP pipeline and returns at most 5
// peaks sorted by magnitude descending. A chunk of the wrong length yields
// an empty result (spec §4.1 step 1 / §7 InvalidChunk — not fatal, the
// pipeline advances time as if the chunk were silence).
func (sm *SpectralMonitor) Process(chunk []int16) []Peak {
	if len(chunk) != sm.chunkSize {
		return nil
	}

	windowed := make([]complex128, sm.chunkSize)
	for i, s := range chunk {
		windowed[i] = complex(float64(s)/32768.0*sm.window[i], 0)
	}

	spectrum := fft.FFT(windowed)
	n := sm.chunkSize/2 + 1
	mags := make([]float64, n)
	maxMag := 0.0
	for i := 0; i < n; i++ {
		m := cmplx.Abs(spectrum[i])
		mags[i] = m
		if m > maxMag {
			maxMag = m
		}
	}

	noiseFloor := median(mags)
	threshold := sm.minMagnitude
	if 3*noiseFloor > threshold {
		threshold = 3 * noiseFloor
	}
	if maxMag < threshold {
		return nil
	}

	var peaks []Peak
	for i := 2; i <= n-3; i++ {
		mag := mags[i]
		if mag < threshold {
			continue
		}
		if !(mag > mags[i-1] && mag > mags[i+1]) {
			continue
		}

		neighborsAvg := (mags[i-2] + mags[i-1] + mags[i+1] + mags[i+2]) / 4
		if neighborsAvg < 1e-6 {
			neighborsAvg = 1e-6
		}
		if mag/neighborsAvg <= sm.minSharpness {
			continue
		}

		freq := sm.interpolatedFrequency(mags, i)
		peaks = append(peaks, Peak{Frequency: freq, Magnitude: mag, BinIndex: i})
	}

	sort.Slice(peaks, func(a, b int) bool { return peaks[a].Magnitude > peaks[b].Magnitude })
	if len(peaks) > 5 {
		peaks = peaks[:5]
	}
	return peaks
}

// interpolatedFrequency applies parabolic interpolation around bin i to
// estimate the true sub-bin peak frequency (spec §4.1 step 6).
func (sm *SpectralMonitor) interpolatedFrequency(mags []float64, i int) float64 {
	alpha, beta, gamma := mags[i-1], mags[i], mags[i+1]
	denom := alpha - 2*beta + gamma
	delta := 0.0
	if denom != 0 {
		delta = (alpha - gamma) / (2 * denom)
	}
	return (float64(i) + delta) * sm.binFreq
}

// median returns the median of a slice without mutating the caller's copy.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}
