// Package modeltest 提供纯 Go 的最小 Tacotron 后端，用于测试解码循环和上层封装。
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/iabetor/melgen/internal/checkpoint"
	"github.com/iabetor/melgen/internal/device"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/model"
	"github.com/iabetor/melgen/internal/tensor"
)

// Backend 是注册到 model 包的后端名称。
const Backend = "minimal"

// WeightsKey 是最小后端要求的 state_dict 键。
const WeightsKey = "weights"

// Network 是确定性的最小网络：第 k 步输出常数帧，
// 第 StopAfter 步 gate 触发；StopAfter 为 0 时永不停止。
type Network struct {
	NMel      int
	R         int
	StopAfter int

	mu        sync.Mutex
	Weights   []byte
	Placed    device.Device
	Precision device.Precision
	LastExtra map[string]any
	Closed    bool
}

// Factory 返回使用给定 StopAfter 的工厂，并把创建的网络记录到 created。
func Factory(stopAfter int, created *[]*Network) model.Factory {
	return func(h *hparams.HParams) (model.Network, error) {
		n := &Network{NMel: h.NMelChannels, R: h.NFramesPerStep, StopAfter: stopAfter}
		if created != nil {
			*created = append(*created, n)
		}
		return n, nil
	}
}

// Register 以 Backend 名称注册最小后端。
func Register(stopAfter int, created *[]*Network) {
	model.Register(Backend, Factory(stopAfter, created))
}

// LoadStateDict 实现 model.Network。
func (n *Network) LoadStateDict(sd checkpoint.StateDict) error {
	w, ok := sd[WeightsKey]
	if !ok {
		return fmt.Errorf("modeltest: state_dict missing %q", WeightsKey)
	}
	n.Weights = w
	return nil
}

// Place 实现 model.Network。
func (n *Network) Place(dev device.Device, p device.Precision) error {
	n.Placed = dev
	n.Precision = p
	return nil
}

// Encode 实现 model.Network。
func (n *Network) Encode(ctx context.Context, symbols *tensor.Int64, extra map[string]any) (model.Decoder, error) {
	n.mu.Lock()
	n.LastExtra = extra
	n.mu.Unlock()
	return &decoder{net: n, length: symbols.Len()}, nil
}

// Postnet 实现 model.Network，在每个值上加 0.5。
func (n *Network) Postnet(ctx context.Context, mel *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(mel.Shape...)
	for i, v := range mel.Data {
		out.Data[i] = v + 0.5
	}
	return out, nil
}

// Close 实现 model.Network。
func (n *Network) Close() error {
	n.Closed = true
	return nil
}

type decoder struct {
	net    *Network
	length int
	step   int
}

func (d *decoder) Step(ctx context.Context, prev []float32) (model.Step, error) {
	d.step++
	size := d.net.NMel * d.net.R
	frame := make([]float32, size)
	for i := range frame {
		frame[i] = float32(d.step) + float32(i%d.net.NMel)*0.01
	}

	gate := float32(-10)
	if d.net.StopAfter > 0 && d.step >= d.net.StopAfter {
		gate = 10
	}

	align := make([]float32, d.length)
	pos := d.step - 1
	if pos >= d.length {
		pos = d.length - 1
	}
	align[pos] = 1

	return model.Step{Frame: frame, GateLogit: gate, Alignment: align}, nil
}

func (d *decoder) Close() error { return nil }
