// Package tacotron 加载 Tacotron 2 检查点并提供符号序列 → 梅尔谱的推理接口。
package tacotron

import (
	"context"

	"github.com/iabetor/melgen/internal/checkpoint"
	"github.com/iabetor/melgen/internal/device"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/logger"
	"github.com/iabetor/melgen/internal/model"
	"github.com/iabetor/melgen/internal/stft"
	"github.com/iabetor/melgen/internal/tensor"
)

// 默认参数。
const (
	DefaultStepsPerSymbol = 10
	DefaultGateThreshold  = 0.5
)

// Options 是构造 Wrapper 的可选参数，零值字段使用默认值。
type Options struct {
	// Hparams 是外部超参数来源，仅在检查点未内嵌超参数时使用。
	Hparams hparams.Source
	// StepsPerSymbol 决定最大解码步数 = StepsPerSymbol × 序列长度。
	StepsPerSymbol float64
	GateThreshold  float64
	// Detector 探测加速器，为空时视为不可用。
	Detector device.Detector
}

// Wrapper 持有加载好的模型和频谱变换，构造后不再修改。
type Wrapper struct {
	device    device.Device
	precision device.Precision
	hparams   *hparams.HParams
	model     *model.Tacotron2
	stft      *stft.STFT
	digest    string

	stepsPerSymbol float64
	gateThreshold  float64
}

// New 加载 modelPath 处的检查点。
// 除超参数缺失返回 hparams.ErrNotFound 外，其余错误原样返回。
func New(modelPath, requestedDevice string, opts Options) (*Wrapper, error) {
	dev, precision, err := device.Select(requestedDevice, opts.Detector)
	if err != nil {
		return nil, err
	}
	if req, err := device.Parse(requestedDevice); err != nil || req != dev {
		logger.Warnf("[tacotron] 加速器不可用，%q 回退到 %s", requestedDevice, dev)
	}

	ckpt, err := checkpoint.Load(modelPath, dev)
	if err != nil {
		return nil, err
	}

	src, err := configSource(ckpt, opts.Hparams)
	if err != nil {
		return nil, err
	}
	hp, err := hparams.Create(src)
	if err != nil {
		return nil, err
	}
	hp.Device = dev

	m, err := model.Load(hp)
	if err != nil {
		return nil, err
	}
	if err := m.LoadStateDict(ckpt.StateDict); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.Eval().To(dev, precision); err != nil {
		m.Close()
		return nil, err
	}

	transform, err := stft.New(stft.ConfigFrom(hp))
	if err != nil {
		m.Close()
		return nil, err
	}

	w := &Wrapper{
		device:         dev,
		precision:      precision,
		hparams:        hp,
		model:          m,
		stft:           transform,
		digest:         ckpt.Digest(),
		stepsPerSymbol: opts.StepsPerSymbol,
		gateThreshold:  opts.GateThreshold,
	}
	if w.stepsPerSymbol <= 0 {
		w.stepsPerSymbol = DefaultStepsPerSymbol
	}
	if w.gateThreshold <= 0 {
		w.gateThreshold = DefaultGateThreshold
	}

	logger.Infof("[tacotron] 模型已加载: path=%s device=%s precision=%s backend=%s n_mel=%d charset=%s",
		modelPath, dev, precision, hp.Backend, hp.NMelChannels, hp.Charset)
	return w, nil
}

// LoadHParams 只解析 modelPath 的超参数，不加载网络。
// 来源优先级与 New 相同。
func LoadHParams(modelPath string, external hparams.Source) (*hparams.HParams, *checkpoint.Checkpoint, error) {
	ckpt, err := checkpoint.Load(modelPath, device.CPUDevice)
	if err != nil {
		return nil, nil, err
	}
	src, err := configSource(ckpt, external)
	if err != nil {
		return nil, nil, err
	}
	hp, err := hparams.Create(src)
	if err != nil {
		return nil, nil, err
	}
	return hp, ckpt, nil
}

// configSource 优先使用检查点内嵌的超参数，其次是外部来源。
func configSource(ckpt *checkpoint.Checkpoint, external hparams.Source) (hparams.Source, error) {
	if ckpt.HasHparams() {
		return hparams.Blob(ckpt.Hparams), nil
	}
	if external == nil {
		return nil, hparams.ErrNotFound
	}
	return external, nil
}

// Call 将一维符号序列转换为 postnet 后的梅尔谱 [n_mel_channels, frames]。
// opts.MaxDecoderSteps 总是被覆盖为 StepsPerSymbol × len(symbols)；
// opts.GateThreshold 为 0 时使用构造时的阈值。
func (w *Wrapper) Call(ctx context.Context, symbols []int64, opts model.InferenceOptions) (*tensor.Tensor, error) {
	seq := tensor.Int64Row(symbols, w.device)

	opts.MaxDecoderSteps = w.MaxDecoderSteps(seq.Len())
	if opts.GateThreshold == 0 {
		opts.GateThreshold = w.gateThreshold
	}

	out, err := w.model.Inference(ctx, seq, opts)
	if err != nil {
		return nil, err
	}
	return out.MelPostnet, nil
}

// MaxDecoderSteps 返回长度为 n 的序列对应的解码步数上限，至少为 1。
func (w *Wrapper) MaxDecoderSteps(n int) int {
	return max(1, int(w.stepsPerSymbol*float64(n)))
}

// Device 返回解析后的设备。
func (w *Wrapper) Device() device.Device { return w.device }

// Precision 返回解析后的精度。
func (w *Wrapper) Precision() device.Precision { return w.precision }

// HParams 返回解析后的超参数。
func (w *Wrapper) HParams() *hparams.HParams { return w.hparams }

// STFT 返回与模型配置一致的频谱变换。
func (w *Wrapper) STFT() *stft.STFT { return w.stft }

// Digest 返回检查点文件的 sha256。
func (w *Wrapper) Digest() string { return w.digest }

// GateThreshold 返回默认 gate 阈值。
func (w *Wrapper) GateThreshold() float64 { return w.gateThreshold }

// Close 释放模型资源。
func (w *Wrapper) Close() error {
	return w.model.Close()
}
