package audio

import (
	"math"
)

// PCMToFloat32 将位深为 bitDepth 的整型 PCM 样本归一化到 [-1.0, 1.0)。
// 除数取 2^(bitDepth-1)，与训练时 max_wav_value=32768 的归一化一致。
// 8 位 WAV 是无符号的，以 128 为零点。
func PCMToFloat32(in []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(math.Ldexp(1, bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s-offset) / scale
	}
	return out
}

// Int16ToFloat32 将 PCM int16 样本转换为 [-1.0, 1.0) 范围的 float32。
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToPCM 将 [-1.0, 1.0] 范围的 float32 样本转换为位深 bitDepth 的整型 PCM。
// 8 位输出为无符号。
func Float32ToPCM(in []float32, bitDepth int) []int {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	maxVal := math.Ldexp(1, bitDepth-1) - 1
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	out := make([]int, len(in))
	for i, s := range in {
		// 钳位到 [-1.0, 1.0]
		v := math.Max(-1.0, math.Min(1.0, float64(s)))
		out[i] = int(math.Round(v*maxVal)) + offset
	}
	return out
}

// Downmix 把交错排列的多声道样本取平均混为单声道。
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	n := len(in) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Peak 返回样本的最大绝对值。
func Peak(in []float32) float32 {
	var p float32
	for _, s := range in {
		if s < 0 {
			s = -s
		}
		if s > p {
			p = s
		}
	}
	return p
}
