package onnxnet

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/iabetor/melgen/internal/checkpoint"
	"github.com/iabetor/melgen/internal/device"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/logger"
	"github.com/iabetor/melgen/internal/model"
	"github.com/iabetor/melgen/internal/tensor"
)

// state_dict 中的图名称。
const (
	GraphEncoder = "encoder"
	GraphDecoder = "decoder_iter"
	GraphPostnet = "postnet"
)

var (
	encoderInputs  = []string{"sequences", "sequence_lengths"}
	encoderOutputs = []string{"memory", "processed_memory"}

	decoderStates  = []string{"attention_hidden", "attention_cell", "decoder_hidden", "decoder_cell", "attention_weights", "attention_weights_cum", "attention_context"}
	decoderInputs  = append(append([]string{"decoder_input"}, decoderStates...), "memory", "processed_memory")
	decoderOutputs = append([]string{"decoder_output", "gate_prediction"}, prefixed("out_", decoderStates)...)

	// maskInput 是部分导出脚本给 decoder_iter 增加的可选输入 [1,L] bool。
	maskInput = "mask"

	postnetInputs  = []string{"mel_outputs"}
	postnetOutputs = []string{"mel_outputs_postnet"}
)

func prefixed(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

// network 持有三张图的执行器。执行器在 Place 时按设备创建。
type network struct {
	hp      *hparams.HParams
	threads int

	mu      sync.Mutex
	graphs  checkpoint.StateDict
	encoder executor
	decoder executor
	postnet executor
	// withMask 为 true 时 decoder_iter 额外接收 mask 输入。
	withMask bool
}

func newNetwork(h *hparams.HParams, threads int) *network {
	return &network{hp: h, threads: threads}
}

// LoadStateDict 实现 model.Network。
func (n *network) LoadStateDict(sd checkpoint.StateDict) error {
	for _, name := range []string{GraphEncoder, GraphDecoder, GraphPostnet} {
		if len(sd[name]) == 0 {
			return fmt.Errorf("[onnx] state_dict 缺少计算图 %q（现有: %v）", name, sd.Keys())
		}
	}
	n.mu.Lock()
	n.graphs = sd
	n.mu.Unlock()
	return nil
}

// Place 实现 model.Network：在目标设备上重建全部会话。
func (n *network) Place(dev device.Device, p device.Precision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.graphs == nil {
		return fmt.Errorf("[onnx] 尚未加载计算图")
	}

	declared, err := graphInputs(n.graphs[GraphDecoder])
	if err != nil {
		return fmt.Errorf("[onnx] 读取 decoder_iter 输入失败: %w", err)
	}
	withMask := slices.Contains(declared, maskInput)
	decIn := decoderInputs
	if withMask {
		decIn = append(slices.Clone(decoderInputs), maskInput)
	}

	opts, err := sessionOptions(dev, n.threads)
	if err != nil {
		return err
	}
	defer opts.Destroy()

	enc, err := newSessionExec(GraphEncoder, n.graphs[GraphEncoder], encoderInputs, encoderOutputs, opts)
	if err != nil {
		return err
	}
	dec, err := newSessionExec(GraphDecoder, n.graphs[GraphDecoder], decIn, decoderOutputs, opts)
	if err != nil {
		enc.close()
		return err
	}
	post, err := newSessionExec(GraphPostnet, n.graphs[GraphPostnet], postnetInputs, postnetOutputs, opts)
	if err != nil {
		enc.close()
		dec.close()
		return err
	}

	n.closeLocked()
	n.encoder, n.decoder, n.postnet = enc, dec, post
	n.withMask = withMask
	logger.Infof("[onnx] 计算图已加载到 %s (%s)，mask=%v", dev, p, withMask)
	return nil
}

// Encode 实现 model.Network。
func (n *network) Encode(ctx context.Context, symbols *tensor.Int64, extra map[string]any) (model.Decoder, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.encoder == nil {
		return nil, fmt.Errorf("[onnx] 会话未创建，需要先调用 Place")
	}

	length := int64(symbols.Len())
	outs, err := n.encoder.run([]feed{
		{Shape: []int64{1, length}, Int: symbols.Data},
		{Shape: []int64{1}, Int: []int64{length}},
	})
	if err != nil {
		return nil, err
	}
	if len(outs) != len(encoderOutputs) {
		return nil, fmt.Errorf("[onnx] encoder 输出 %d 个张量，需要 %d 个", len(outs), len(encoderOutputs))
	}

	d := &decoder{net: n, length: int(length), memory: outs[0], processed: outs[1]}
	d.initState()
	return d, nil
}

// Postnet 实现 model.Network。
func (n *network) Postnet(ctx context.Context, mel *tensor.Tensor) (*tensor.Tensor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.postnet == nil {
		return nil, fmt.Errorf("[onnx] 会话未创建，需要先调用 Place")
	}

	nMel, frames := mel.Dim(0), mel.Dim(1)
	outs, err := n.postnet.run([]feed{{Shape: []int64{1, int64(nMel), int64(frames)}, Float: mel.Data}})
	if err != nil {
		return nil, err
	}
	if len(outs) != 1 {
		return nil, fmt.Errorf("[onnx] postnet 输出 %d 个张量，需要 1 个", len(outs))
	}
	return tensor.FromData(outs[0].Data, nMel, frames)
}

// Close 实现 model.Network。
func (n *network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked()
	return nil
}

func (n *network) closeLocked() {
	for _, e := range []executor{n.encoder, n.decoder, n.postnet} {
		if e != nil {
			e.close()
		}
	}
	n.encoder, n.decoder, n.postnet = nil, nil, nil
}
