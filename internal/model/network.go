package model

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iabetor/melgen/internal/checkpoint"
	"github.com/iabetor/melgen/internal/device"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/tensor"
)

// Network 是执行后端需要实现的接口：编码器、单步解码器和 postnet。
type Network interface {
	// LoadStateDict 载入训练好的参数。
	LoadStateDict(sd checkpoint.StateDict) error
	// Place 把网络固定到指定设备和精度上。
	Place(dev device.Device, p device.Precision) error
	// Encode 编码 [1, L] 符号序列，返回从初始状态开始的解码器。
	Encode(ctx context.Context, symbols *tensor.Int64, extra map[string]any) (Decoder, error)
	// Postnet 对 [n_mel, T] 梅尔谱做精修，返回值已包含残差。
	Postnet(ctx context.Context, mel *tensor.Tensor) (*tensor.Tensor, error)
	Close() error
}

// Decoder 是一次推理的自回归解码状态。
type Decoder interface {
	// Step 以上一帧（首帧为全零）为输入解码一步。
	Step(ctx context.Context, prev []float32) (Step, error)
	Close() error
}

// Step 是单步解码结果。
type Step struct {
	Frame     []float32 // n_mel * n_frames_per_step
	GateLogit float32
	Alignment []float32 // 长度为 L 的注意力权重
}

// Factory 根据超参数创建后端网络。
type Factory func(h *hparams.HParams) (Network, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册名为 name 的后端，重复注册会覆盖。
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Backends 返回已注册的后端名称。
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load 按 h.Backend 创建模型。返回的模型处于训练模式且未加载参数。
func Load(h *hparams.HParams) (*Tacotron2, error) {
	registryMu.RLock()
	f, ok := registry[h.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model: 后端 %q 未注册（已注册: %v）", h.Backend, Backends())
	}

	net, err := f(h)
	if err != nil {
		return nil, err
	}
	return &Tacotron2{hp: h, net: net, training: true, device: device.CPUDevice}, nil
}
