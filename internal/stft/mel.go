package stft

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Slaney 梅尔刻度：1 kHz 以下线性，以上对数。
const (
	fSP        = 200.0 / 3
	minLogHz   = 1000.0
	minLogMel  = minLogHz / fSP
	logStepMel = 0.06875177742094912 // ln(6.4) / 27
)

func hzToMel(hz float64) float64 {
	if hz >= minLogHz {
		return minLogMel + math.Log(hz/minLogHz)/logStepMel
	}
	return hz / fSP
}

func melToHz(mel float64) float64 {
	if mel >= minLogMel {
		return minLogHz * math.Exp(logStepMel*(mel-minLogMel))
	}
	return fSP * mel
}

// melBasis 构造 [numMels, nFFT/2+1] 的三角滤波器矩阵，按带宽做 Slaney 归一化。
func melBasis(sampleRate, nFFT, numMels int, fmin, fmax float64) *mat.Dense {
	bins := nFFT/2 + 1

	fftFreqs := make([]float64, bins)
	floats.Span(fftFreqs, 0, float64(sampleRate)/2)

	mels := make([]float64, numMels+2)
	floats.Span(mels, hzToMel(fmin), hzToMel(fmax))
	melF := make([]float64, len(mels))
	for i, m := range mels {
		melF[i] = melToHz(m)
	}

	basis := mat.NewDense(numMels, bins, nil)
	for m := 0; m < numMels; m++ {
		lowDiff := melF[m+1] - melF[m]
		highDiff := melF[m+2] - melF[m+1]
		enorm := 2.0 / (melF[m+2] - melF[m])
		for k, f := range fftFreqs {
			lower := (f - melF[m]) / lowDiff
			upper := (melF[m+2] - f) / highDiff
			w := math.Max(0, math.Min(lower, upper))
			basis.Set(m, k, w*enorm)
		}
	}
	return basis
}

// hannWindow 生成周期 Hann 窗并居中补零到 size。
func hannWindow(winLength, size int) []float64 {
	w := make([]float64, size)
	offset := (size - winLength) / 2
	for i := 0; i < winLength; i++ {
		w[offset+i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(winLength))
	}
	return w
}
