package onnxnet

import (
	"context"
	"fmt"

	"github.com/iabetor/melgen/internal/model"
)

// decoder 保存一次推理的 RNN/注意力状态。状态以切片形式在步间传递。
type decoder struct {
	net       *network
	length    int
	memory    output
	processed output

	states [][]float32
	shapes [][]int64
	mask   []bool
}

func (d *decoder) initState() {
	h := d.net.hp
	L := int64(d.length)
	d.shapes = [][]int64{
		{1, int64(h.AttentionRNNDim)},     // attention_hidden
		{1, int64(h.AttentionRNNDim)},     // attention_cell
		{1, int64(h.DecoderRNNDim)},       // decoder_hidden
		{1, int64(h.DecoderRNNDim)},       // decoder_cell
		{1, L},                            // attention_weights
		{1, L},                            // attention_weights_cum
		{1, int64(h.EncoderEmbeddingDim)}, // attention_context
	}
	d.states = make([][]float32, len(d.shapes))
	for i, s := range d.shapes {
		n := int64(1)
		for _, v := range s {
			n *= v
		}
		d.states[i] = make([]float32, n)
	}
	if d.net.withMask {
		// 单条输入没有填充，全部位置有效
		d.mask = make([]bool, d.length)
		for i := range d.mask {
			d.mask[i] = true
		}
	}
}

// Step 实现 model.Decoder。
func (d *decoder) Step(ctx context.Context, prev []float32) (model.Step, error) {
	d.net.mu.Lock()
	defer d.net.mu.Unlock()
	if d.net.decoder == nil {
		return model.Step{}, fmt.Errorf("[onnx] 会话已关闭")
	}

	feeds := make([]feed, 0, len(decoderInputs)+1)
	feeds = append(feeds, feed{Shape: []int64{1, int64(len(prev))}, Float: prev})
	for i, s := range d.states {
		feeds = append(feeds, feed{Shape: d.shapes[i], Float: s})
	}
	feeds = append(feeds,
		feed{Shape: d.memory.Shape, Float: d.memory.Data},
		feed{Shape: d.processed.Shape, Float: d.processed.Data},
	)
	if d.mask != nil {
		feeds = append(feeds, feed{Shape: []int64{1, int64(d.length)}, Bool: d.mask})
	}

	outs, err := d.net.decoder.run(feeds)
	if err != nil {
		return model.Step{}, err
	}
	if len(outs) != len(decoderOutputs) {
		return model.Step{}, fmt.Errorf("[onnx] decoder_iter 输出 %d 个张量，需要 %d 个", len(outs), len(decoderOutputs))
	}
	if len(outs[1].Data) == 0 {
		return model.Step{}, fmt.Errorf("[onnx] decoder_iter 的 gate_prediction 为空")
	}
	for i := range d.states {
		next := outs[2+i].Data
		if len(next) != len(d.states[i]) {
			return model.Step{}, fmt.Errorf("[onnx] 状态 %s 大小 %d，需要 %d", decoderStates[i], len(next), len(d.states[i]))
		}
		d.states[i] = next
	}

	// out_attention_weights 即本步对齐
	align := append([]float32(nil), d.states[4]...)
	return model.Step{Frame: outs[0].Data, GateLogit: outs[1].Data[0], Alignment: align}, nil
}

// Close 实现 model.Decoder。
func (d *decoder) Close() error {
	d.memory, d.processed = output{}, output{}
	d.states = nil
	return nil
}
