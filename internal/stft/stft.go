// Package stft 实现 Tacotron 的频谱变换：
// 反射补边 → Hann 窗 STFT 幅度谱 → Slaney 梅尔滤波 → log 压缩。
//
// STFT 构造后只读，可以被多次调用。
package stft

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/tensor"
)

// clipVal 是 log 压缩前的下限。
const clipVal = 1e-5

// Config 是频谱变换参数。
type Config struct {
	FilterLength int
	HopLength    int
	WinLength    int
	NMelChannels int
	SamplingRate int
	MelFmin      float64
	MelFmax      float64
}

// ConfigFrom 从超参数中取出频谱相关字段。
func ConfigFrom(h *hparams.HParams) Config {
	return Config{
		FilterLength: h.FilterLength,
		HopLength:    h.HopLength,
		WinLength:    h.WinLength,
		NMelChannels: h.NMelChannels,
		SamplingRate: h.SamplingRate,
		MelFmin:      h.MelFmin,
		MelFmax:      h.MelFmax,
	}
}

// STFT 是 TacotronSTFT 的 Go 实现。
type STFT struct {
	cfg      Config
	window   []float64
	fft      *fourier.FFT
	melBasis *mat.Dense
}

// New 根据配置预计算窗函数和梅尔滤波器组。
func New(cfg Config) (*STFT, error) {
	if cfg.FilterLength < 2 || cfg.HopLength <= 0 || cfg.NMelChannels <= 0 || cfg.SamplingRate <= 0 {
		return nil, fmt.Errorf("stft: 参数必须为正数: %+v", cfg)
	}
	if cfg.WinLength <= 0 || cfg.WinLength > cfg.FilterLength {
		return nil, fmt.Errorf("stft: win_length(%d) 必须在 (0, filter_length=%d] 内", cfg.WinLength, cfg.FilterLength)
	}
	if cfg.MelFmax <= cfg.MelFmin {
		return nil, fmt.Errorf("stft: mel_fmax(%g) 必须大于 mel_fmin(%g)", cfg.MelFmax, cfg.MelFmin)
	}

	return &STFT{
		cfg:      cfg,
		window:   hannWindow(cfg.WinLength, cfg.FilterLength),
		fft:      fourier.NewFFT(cfg.FilterLength),
		melBasis: melBasis(cfg.SamplingRate, cfg.FilterLength, cfg.NMelChannels, cfg.MelFmin, cfg.MelFmax),
	}, nil
}

// Config 返回构造参数。
func (s *STFT) Config() Config { return s.cfg }

// NumFrames 返回 n 个采样点对应的帧数（两端各补 filter_length/2）。
func (s *STFT) NumFrames(n int) int {
	return 1 + n/s.cfg.HopLength
}

// Magnitude 计算幅度谱，返回 [filter_length/2+1, frames]。
func (s *STFT) Magnitude(y []float64) (*mat.Dense, error) {
	pad := s.cfg.FilterLength / 2
	if len(y) <= pad {
		return nil, fmt.Errorf("stft: 输入长度 %d 不足以反射补边 %d", len(y), pad)
	}
	padded := reflectPad(y, pad)

	bins := s.cfg.FilterLength/2 + 1
	frames := 1 + (len(padded)-s.cfg.FilterLength)/s.cfg.HopLength
	mag := mat.NewDense(bins, frames, nil)

	frame := make([]float64, s.cfg.FilterLength)
	coeffs := make([]complex128, bins)
	for t := 0; t < frames; t++ {
		start := t * s.cfg.HopLength
		for i := range frame {
			frame[i] = padded[start+i] * s.window[i]
		}
		coeffs = s.fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			mag.Set(k, t, cmplx.Abs(c))
		}
	}
	return mag, nil
}

// MelSpectrogram 计算 [-1, 1] 范围音频的 log 梅尔谱，返回 [n_mel_channels, frames]。
func (s *STFT) MelSpectrogram(y []float32) (*tensor.Tensor, error) {
	samples := make([]float64, len(y))
	for i, v := range y {
		if v < -1 || v > 1 {
			return nil, fmt.Errorf("stft: 采样值 %g 超出 [-1, 1]", v)
		}
		samples[i] = float64(v)
	}

	mag, err := s.Magnitude(samples)
	if err != nil {
		return nil, err
	}

	var mel mat.Dense
	mel.Mul(s.melBasis, mag)

	rows, cols := mel.Dims()
	out := tensor.New(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Data[i*cols+j] = float32(SpectralNormalize(mel.At(i, j)))
		}
	}
	return out, nil
}

// SpectralNormalize 动态范围压缩：log(max(x, 1e-5))。
func SpectralNormalize(x float64) float64 {
	return math.Log(math.Max(x, clipVal))
}

// SpectralDeNormalize 是 SpectralNormalize 的逆变换。
func SpectralDeNormalize(x float64) float64 {
	return math.Exp(x)
}

func reflectPad(y []float64, pad int) []float64 {
	n := len(y)
	out := make([]float64, n+2*pad)
	copy(out[pad:], y)
	for i := 0; i < pad; i++ {
		out[pad-1-i] = y[i+1]
		out[pad+n+i] = y[n-2-i]
	}
	return out
}
