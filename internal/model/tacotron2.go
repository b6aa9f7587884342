// Package model 组装 Tacotron 2 推理：后端网络负责计算，
// 本包负责自回归解码循环、停止判定和输出整形。
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iabetor/melgen/internal/checkpoint"
	"github.com/iabetor/melgen/internal/device"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/logger"
	"github.com/iabetor/melgen/internal/tensor"
)

var (
	// ErrNotLoaded 表示尚未调用 LoadStateDict。
	ErrNotLoaded = errors.New("model: state dict not loaded")
	// ErrTraining 表示模型未切换到推理模式。
	ErrTraining = errors.New("model: inference requires eval mode")
)

// InferenceOptions 是推理调用的可选参数。零值字段使用超参数中的默认值。
type InferenceOptions struct {
	MaxDecoderSteps int
	GateThreshold   float64
	// Extra 原样传给后端，例如随机种子。
	Extra map[string]any
}

// Outputs 是一次推理的全部输出。
type Outputs struct {
	Mel        *tensor.Tensor // [n_mel, T]，postnet 之前
	MelPostnet *tensor.Tensor // [n_mel, T]
	Gates      *tensor.Tensor // [steps]，gate logit
	Alignments *tensor.Tensor // [steps, L]
	Truncated  bool           // 达到最大步数而非 gate 停止
}

// Tacotron2 是加载好的声学模型。
type Tacotron2 struct {
	hp        *hparams.HParams
	net       Network
	training  bool
	loaded    bool
	device    device.Device
	precision device.Precision
}

// LoadStateDict 把检查点参数载入后端网络。
func (m *Tacotron2) LoadStateDict(sd checkpoint.StateDict) error {
	if len(sd) == 0 {
		return fmt.Errorf("model: checkpoint has no state_dict")
	}
	if err := m.net.LoadStateDict(sd); err != nil {
		return err
	}
	m.loaded = true
	return nil
}

// Eval 切换到推理模式。
func (m *Tacotron2) Eval() *Tacotron2 {
	m.training = false
	return m
}

// To 将模型固定到设备和精度上。
func (m *Tacotron2) To(dev device.Device, p device.Precision) error {
	if err := m.net.Place(dev, p); err != nil {
		return err
	}
	m.device = dev
	m.precision = p
	return nil
}

// Device 返回模型所在设备。
func (m *Tacotron2) Device() device.Device { return m.device }

// Precision 返回模型精度。
func (m *Tacotron2) Precision() device.Precision { return m.precision }

// Close 释放后端资源。
func (m *Tacotron2) Close() error {
	return m.net.Close()
}

// Inference 对 [1, L] 符号序列做自回归解码。
// 当 sigmoid(gate) 超过阈值或达到最大步数时停止。
func (m *Tacotron2) Inference(ctx context.Context, symbols *tensor.Int64, opts InferenceOptions) (*Outputs, error) {
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	if m.training {
		return nil, ErrTraining
	}
	if len(symbols.Shape) != 2 || symbols.Shape[0] != 1 {
		return nil, fmt.Errorf("model: expected [1, L] input, got %v", symbols.Shape)
	}
	length := symbols.Len()
	if length == 0 {
		return nil, fmt.Errorf("model: empty symbol sequence")
	}
	for i, id := range symbols.Data {
		if id < 0 || id >= int64(m.hp.NSymbols) {
			return nil, fmt.Errorf("model: symbol %d at position %d out of range [0, %d)", id, i, m.hp.NSymbols)
		}
	}

	maxSteps := opts.MaxDecoderSteps
	if maxSteps <= 0 {
		maxSteps = m.hp.MaxDecoderSteps
	}
	threshold := opts.GateThreshold
	if threshold <= 0 {
		threshold = m.hp.GateThreshold
	}

	start := time.Now()
	dec, err := m.net.Encode(ctx, symbols, opts.Extra)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	nMel := m.hp.NMelChannels
	frameSize := nMel * m.hp.NFramesPerStep

	var (
		frames     [][]float32
		gates      []float32
		alignments [][]float32
		truncated  bool
	)
	prev := make([]float32, frameSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step, err := dec.Step(ctx, prev)
		if err != nil {
			return nil, err
		}
		if len(step.Frame) != frameSize {
			return nil, fmt.Errorf("model: decoder frame has %d values, want %d", len(step.Frame), frameSize)
		}
		if len(step.Alignment) != length {
			return nil, fmt.Errorf("model: alignment has %d values, want %d", len(step.Alignment), length)
		}

		frames = append(frames, step.Frame)
		gates = append(gates, step.GateLogit)
		alignments = append(alignments, step.Alignment)

		if sigmoid(step.GateLogit) > threshold {
			break
		}
		if len(frames) >= maxSteps {
			truncated = true
			logger.Warnf("[model] 已达到最大解码步数 %d，输入长度 %d", maxSteps, length)
			break
		}
		prev = step.Frame
	}

	mel := assembleMel(frames, nMel, m.hp.NFramesPerStep)
	post, err := m.net.Postnet(ctx, mel)
	if err != nil {
		return nil, err
	}
	if post.Dim(0) != nMel || post.Dim(1) != mel.Dim(1) {
		return nil, fmt.Errorf("model: postnet output shape %v, want [%d %d]", post.Shape, nMel, mel.Dim(1))
	}

	out := &Outputs{
		Mel:        mel.To(m.precision),
		MelPostnet: post.To(m.precision),
		Gates:      &tensor.Tensor{Shape: []int{len(gates)}, Data: gates},
		Alignments: stack(alignments, length),
		Truncated:  truncated,
	}
	out.Gates.To(m.precision)
	out.Alignments.To(m.precision)

	logger.Z.Debug("[model] 解码完成",
		zap.Int("symbols", length),
		zap.Int("steps", len(frames)),
		zap.Bool("truncated", truncated),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// assembleMel 把每步 n_mel*r 的输出整理成 [n_mel, steps*r]。
// 每步内的布局为 r 个连续的 n_mel 帧。
func assembleMel(frames [][]float32, nMel, r int) *tensor.Tensor {
	total := len(frames) * r
	mel := tensor.New(nMel, total)
	for s, f := range frames {
		for j := 0; j < r; j++ {
			t := s*r + j
			for c := 0; c < nMel; c++ {
				mel.Data[c*total+t] = f[j*nMel+c]
			}
		}
	}
	return mel
}

func stack(rows [][]float32, width int) *tensor.Tensor {
	out := tensor.New(len(rows), width)
	for i, r := range rows {
		copy(out.Data[i*width:], r)
	}
	return out
}

func sigmoid(x float32) float64 {
	return 1 / (1 + math.Exp(-float64(x)))
}
