package stft

import (
	"math"
	"testing"

	"github.com/iabetor/melgen/internal/hparams"
)

func defaultSTFT(t *testing.T) *STFT {
	t.Helper()
	h := hparams.Defaults()
	s, err := New(ConfigFrom(&h))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	bad := []Config{
		{FilterLength: 0, HopLength: 256, WinLength: 1024, NMelChannels: 80, SamplingRate: 22050, MelFmax: 8000},
		{FilterLength: 1024, HopLength: 256, WinLength: 2048, NMelChannels: 80, SamplingRate: 22050, MelFmax: 8000},
		{FilterLength: 1024, HopLength: 256, WinLength: 1024, NMelChannels: 80, SamplingRate: 22050, MelFmin: 100, MelFmax: 50},
	}
	for _, c := range bad {
		if _, err := New(c); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}

func TestMelToHzInverse(t *testing.T) {
	for _, hz := range []float64{0, 300, 999, 1000, 4000, 8000} {
		if got := melToHz(hzToMel(hz)); math.Abs(got-hz) > 1e-6 {
			t.Errorf("melToHz(hzToMel(%g)) = %g", hz, got)
		}
	}
}

func TestMelBasis_Shape(t *testing.T) {
	b := melBasis(22050, 1024, 80, 0, 8000)
	r, c := b.Dims()
	if r != 80 || c != 513 {
		t.Fatalf("basis dims = %dx%d", r, c)
	}
	for m := 0; m < r; m++ {
		var sum float64
		for k := 0; k < c; k++ {
			v := b.At(m, k)
			if v < 0 {
				t.Fatalf("negative weight at (%d,%d)", m, k)
			}
			sum += v
		}
		if sum == 0 {
			t.Errorf("filter %d is empty", m)
		}
	}
}

func TestMelSpectrogram_ShapeAndPeak(t *testing.T) {
	s := defaultSTFT(t)
	const n = 22050 / 2
	mel, err := s.MelSpectrogram(sine(1000, 22050, n))
	if err != nil {
		t.Fatalf("MelSpectrogram failed: %v", err)
	}
	if mel.Dim(0) != 80 {
		t.Errorf("channels = %d, want 80", mel.Dim(0))
	}
	if mel.Dim(1) != s.NumFrames(n) {
		t.Errorf("frames = %d, want %d", mel.Dim(1), s.NumFrames(n))
	}

	// 1 kHz 正弦的能量应集中在中心频率最接近 1 kHz 的滤波器附近
	mels := make([]float64, 82)
	lo, hi := hzToMel(0), hzToMel(8000)
	want, best := 0, math.Inf(1)
	for i := range mels {
		center := melToHz(lo + (hi-lo)*float64(i)/81)
		if i >= 1 && i <= 80 && math.Abs(center-1000) < best {
			best = math.Abs(center - 1000)
			want = i - 1
		}
	}

	frame := mel.Dim(1) / 2
	peak := 0
	for m := 1; m < 80; m++ {
		if mel.At2(m, frame) > mel.At2(peak, frame) {
			peak = m
		}
	}
	if d := peak - want; d < -1 || d > 1 {
		t.Errorf("peak channel = %d, want about %d", peak, want)
	}
}

func TestMelSpectrogram_SilenceClipped(t *testing.T) {
	s := defaultSTFT(t)
	mel, err := s.MelSpectrogram(make([]float32, 4096))
	if err != nil {
		t.Fatalf("MelSpectrogram failed: %v", err)
	}
	floor := float32(math.Log(clipVal))
	for i, v := range mel.Data {
		if v != floor {
			t.Fatalf("silence value %d = %g, want %g", i, v, floor)
		}
	}
}

func TestMelSpectrogram_Errors(t *testing.T) {
	s := defaultSTFT(t)
	if _, err := s.MelSpectrogram(make([]float32, 100)); err == nil {
		t.Error("expected error for too-short input")
	}
	in := make([]float32, 2048)
	in[10] = 1.5
	if _, err := s.MelSpectrogram(in); err == nil {
		t.Error("expected error for out-of-range sample")
	}
}

func TestSpectralNormalizeRoundTrip(t *testing.T) {
	for _, x := range []float64{1e-3, 0.5, 3} {
		if got := SpectralDeNormalize(SpectralNormalize(x)); math.Abs(got-x) > 1e-12 {
			t.Errorf("round trip %g -> %g", x, got)
		}
	}
	if SpectralNormalize(0) != math.Log(clipVal) {
		t.Error("zero should clip to 1e-5")
	}
}
