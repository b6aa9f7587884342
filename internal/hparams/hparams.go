// Package hparams 定义 Tacotron 2 推理所需的超参数。
//
// 超参数来源有两个：检查点内嵌的 JSON，以及外部文件或结构化值。
// Create 以默认值为基础叠加来源中出现的字段，然后调用 Migrate
// 把旧版配置升级到当前版本。
package hparams

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iabetor/melgen/internal/device"
)

// CurrentVersion 是当前配置格式版本。
// 版本 0：使用 language 字段表示字符集；版本 1：改名为 charset。
const CurrentVersion = 1

// ErrNotFound 表示检查点和外部来源都没有提供超参数。
var ErrNotFound = errors.New("hparams: configuration not found in checkpoint or external source")

// HParams 是显式的、带版本号的超参数结构。
type HParams struct {
	Version int    `json:"version" yaml:"version"`
	Backend string `json:"backend" yaml:"backend"`

	// 文本前端
	Charset      string   `json:"charset" yaml:"charset"`
	Language     string   `json:"language,omitempty" yaml:"language,omitempty"` // 旧字段，由 Migrate 迁移到 Charset
	TextCleaners []string `json:"text_cleaners" yaml:"text_cleaners"`

	// 符号嵌入
	NSymbols            int `json:"n_symbols" yaml:"n_symbols"`
	SymbolsEmbeddingDim int `json:"symbols_embedding_dim" yaml:"symbols_embedding_dim"`
	EncoderEmbeddingDim int `json:"encoder_embedding_dim" yaml:"encoder_embedding_dim"`

	// 音频参数
	MaxWavValue  float64 `json:"max_wav_value" yaml:"max_wav_value"`
	SamplingRate int     `json:"sampling_rate" yaml:"sampling_rate"`
	FilterLength int     `json:"filter_length" yaml:"filter_length"`
	HopLength    int     `json:"hop_length" yaml:"hop_length"`
	WinLength    int     `json:"win_length" yaml:"win_length"`
	NMelChannels int     `json:"n_mel_channels" yaml:"n_mel_channels"`
	MelFmin      float64 `json:"mel_fmin" yaml:"mel_fmin"`
	MelFmax      float64 `json:"mel_fmax" yaml:"mel_fmax"`

	// 解码器
	NFramesPerStep  int     `json:"n_frames_per_step" yaml:"n_frames_per_step"`
	DecoderRNNDim   int     `json:"decoder_rnn_dim" yaml:"decoder_rnn_dim"`
	PrenetDim       int     `json:"prenet_dim" yaml:"prenet_dim"`
	MaxDecoderSteps int     `json:"max_decoder_steps" yaml:"max_decoder_steps"`
	GateThreshold   float64 `json:"gate_threshold" yaml:"gate_threshold"`
	AttentionRNNDim int     `json:"attention_rnn_dim" yaml:"attention_rnn_dim"`
	AttentionDim    int     `json:"attention_dim" yaml:"attention_dim"`

	// Postnet
	PostnetEmbeddingDim  int `json:"postnet_embedding_dim" yaml:"postnet_embedding_dim"`
	PostnetKernelSize    int `json:"postnet_kernel_size" yaml:"postnet_kernel_size"`
	PostnetNConvolutions int `json:"postnet_n_convolutions" yaml:"postnet_n_convolutions"`

	FP16Run bool `json:"fp16_run" yaml:"fp16_run"`

	// Device 是运行时解析出的设备，不参与序列化。
	Device device.Device `json:"-" yaml:"-"`
}

// Defaults 返回标准 Tacotron 2（LJSpeech 配置）的默认值。
// Version 为 0，叠加来源后由 Migrate 统一升级。
func Defaults() HParams {
	return HParams{
		Backend:      "onnx",
		Charset:      "en",
		TextCleaners: []string{"english_cleaners"},

		NSymbols:            148,
		SymbolsEmbeddingDim: 512,
		EncoderEmbeddingDim: 512,

		MaxWavValue:  32768.0,
		SamplingRate: 22050,
		FilterLength: 1024,
		HopLength:    256,
		WinLength:    1024,
		NMelChannels: 80,
		MelFmin:      0.0,
		MelFmax:      8000.0,

		NFramesPerStep:  1,
		DecoderRNNDim:   1024,
		PrenetDim:       256,
		MaxDecoderSteps: 1000,
		GateThreshold:   0.5,
		AttentionRNNDim: 1024,
		AttentionDim:    128,

		PostnetEmbeddingDim:  512,
		PostnetKernelSize:    5,
		PostnetNConvolutions: 5,
	}
}

// Create 以默认值为基础叠加 src，然后迁移并校验。
func Create(src Source) (*HParams, error) {
	if src == nil {
		return nil, ErrNotFound
	}
	h := Defaults()
	if err := src.Overlay(&h); err != nil {
		return nil, err
	}
	h = Migrate(h)
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

// Migrate 将旧版配置升级到 CurrentVersion。
// 旧配置的 language 字段优先于 charset（charset 在旧配置中只可能是默认值）。
func Migrate(h HParams) HParams {
	if h.Language != "" {
		h.Charset = h.Language
		h.Language = ""
	}
	if h.Version < CurrentVersion {
		h.Version = CurrentVersion
	}
	return h
}

// Validate 检查推理所需的维度是否合法。
func (h *HParams) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"sampling_rate", h.SamplingRate},
		{"filter_length", h.FilterLength},
		{"hop_length", h.HopLength},
		{"win_length", h.WinLength},
		{"n_mel_channels", h.NMelChannels},
		{"n_frames_per_step", h.NFramesPerStep},
		{"max_decoder_steps", h.MaxDecoderSteps},
		{"n_symbols", h.NSymbols},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("hparams: %s 必须为正数，实际为 %d", p.name, p.v)
		}
	}
	if h.WinLength > h.FilterLength {
		return fmt.Errorf("hparams: win_length(%d) 不能大于 filter_length(%d)", h.WinLength, h.FilterLength)
	}
	if h.MelFmin < 0 || h.MelFmax <= h.MelFmin {
		return fmt.Errorf("hparams: mel 频率范围无效 [%g, %g]", h.MelFmin, h.MelFmax)
	}
	if h.MelFmax > float64(h.SamplingRate)/2 {
		return fmt.Errorf("hparams: mel_fmax(%g) 超过奈奎斯特频率 %d", h.MelFmax, h.SamplingRate/2)
	}
	if h.GateThreshold <= 0 || h.GateThreshold >= 1 {
		return fmt.Errorf("hparams: gate_threshold 必须在 (0, 1) 内，实际为 %g", h.GateThreshold)
	}
	return nil
}

// JSON 序列化为检查点内嵌使用的 JSON 字符串。
func (h *HParams) JSON() (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("hparams: 序列化失败: %w", err)
	}
	return string(data), nil
}
